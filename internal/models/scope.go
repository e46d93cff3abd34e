package models

import "database/sql"

// Scope identifies the owner of a post or credit balance: always a
// user, optionally attributed to a team. A balance lookup prefers the
// team row when TeamID is set and the row exists.
type Scope struct {
	UserID int64
	TeamID sql.NullInt64
}

func UserScope(userID int64) Scope {
	return Scope{UserID: userID}
}

func TeamScope(userID, teamID int64) Scope {
	return Scope{UserID: userID, TeamID: sql.NullInt64{Int64: teamID, Valid: true}}
}
