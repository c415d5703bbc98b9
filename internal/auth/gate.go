package auth

// roleRanks orders roles on an ordinal scale. Access checks compare ranks,
// so any role at or above a page's minimum level passes.
var roleRanks = map[Role]int{
	RolePublic:     0,
	RoleUser:       1,
	RoleSubscriber: 2,
	RoleAdmin:      3,
	RoleSuperadmin: 4,
}

// rankCeiling is above every known role. Unrecognized required levels rank
// here so a typo in a page's required role locks the page instead of
// opening it.
const rankCeiling = 5

// RoleRank returns the ordinal rank of a role. Unknown or empty roles rank
// as public (0): an unrecognized *held* role grants nothing extra.
func RoleRank(r Role) int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return 0
}

// requiredRank returns the rank a caller must meet for a required level.
// Unknown required levels are fail-closed.
func requiredRank(level Role) int {
	if rank, ok := roleRanks[level]; ok {
		return rank
	}
	return rankCeiling
}

// HasAccess reports whether a role meets a page's minimum required level.
// A public (or empty) requirement always passes, including for anonymous
// visitors.
func HasAccess(current, required Role) bool {
	if required == RolePublic || required == "" {
		return true
	}
	return RoleRank(current) >= requiredRank(required)
}

// KnownRole reports whether r is one of the defined roles. Registration
// uses it to reject made-up roles before they reach the credential file.
func KnownRole(r Role) bool {
	_, ok := roleRanks[r]
	return ok
}
