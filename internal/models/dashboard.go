package models

type LeaderboardRow struct {
	Rank int
	User *User
}

// Dashboard is everything the home surface shows one viewer.
type Dashboard struct {
	Viewer      *User
	Remaining   int
	Allowance   int
	Marker      string
	Leaderboard []LeaderboardRow
}
