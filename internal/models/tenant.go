package models

// Tenant is the resolved workspace an event belongs to, with the credentials to act there.
type Tenant struct {
	Scope        TenantScope
	Installation *Installation
}

// ID is the tenant identifier used on users and ledger entries.
func (t Tenant) ID() string { return t.Scope.Key() }

func (t Tenant) BotToken() string {
	if t.Installation == nil {
		return ""
	}
	return t.Installation.BotToken
}

func (t Tenant) BotUserID() string {
	if t.Installation == nil {
		return ""
	}
	return t.Installation.BotUserID
}
