package pipeline

import "github.com/roach88/bloodcheck/internal/querydef"

// Analytics returns the built-in overview queries.
func Analytics() []querydef.Definition {
	return []querydef.Definition{
		{
			Description: "Nodes distributions",
			Headers:     []string{"Node Type", "Number Of Nodes"},
			Query:       "MATCH (n) RETURN labels(n) AS `Node Type`, count(n) AS `Number Of Nodes`",
		},
		{
			Description: "Domains available",
			Headers:     []string{"Domain"},
			Query:       "MATCH (n:Domain) RETURN n.name AS Domain",
		},
		{
			Description: "Owned principals",
			Headers:     []string{"Owned principal", "DisplayName", "Description", "Wave"},
			Query: "MATCH (n) WHERE n.owned = true " +
				"RETURN n.name AS `Owned principal`, n.displayname AS `DisplayName`, " +
				"n.description AS `Description`, n.wave AS `Wave`",
		},
	}
}
