package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Credentials identify the Neo4j server and account to connect with.
type Credentials struct {
	URI      string
	Username string
	Password string
	Database string // empty selects the server default
}

// Neo4jSession is a Session backed by a Bolt driver session.
type Neo4jSession struct {
	driver  neo4j.DriverWithContext
	session neo4j.SessionWithContext
}

// Open connects to the server and opens a session.
// Connectivity is verified before returning so that an unreachable server or
// bad credentials fail here rather than on the first query.
func Open(ctx context.Context, creds Credentials) (*Neo4jSession, error) {
	driver, err := neo4j.NewDriverWithContext(creds.URI, neo4j.BasicAuth(creds.Username, creds.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create driver for %s: %w", creds.URI, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connect to %s: %w", creds.URI, err)
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: creds.Database,
	})
	return &Neo4jSession{driver: driver, session: session}, nil
}

// Run executes cypher in an auto-commit transaction and collects every record.
func (s *Neo4jSession) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	res, err := s.session.Run(ctx, cypher, params)
	if err != nil {
		return Result{}, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return Result{}, err
	}
	keys, err := res.Keys()
	if err != nil {
		return Result{}, err
	}

	out := Result{Keys: keys, Records: make([]Record, 0, len(records))}
	for _, rec := range records {
		row := make(Record, len(rec.Keys))
		for i, key := range rec.Keys {
			row[key] = plainValue(rec.Values[i])
		}
		out.Records = append(out.Records, row)
	}
	return out, nil
}

// Close closes the session and the driver.
func (s *Neo4jSession) Close(ctx context.Context) error {
	sessErr := s.session.Close(ctx)
	drvErr := s.driver.Close(ctx)
	if sessErr != nil {
		return sessErr
	}
	return drvErr
}

// plainValue converts graph entities to plain Go values so that callers never
// depend on driver types. Nodes become their property maps, relationships their type.
func plainValue(v any) any {
	switch val := v.(type) {
	case neo4j.Node:
		return val.Props
	case neo4j.Relationship:
		return val.Type
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = plainValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = plainValue(elem)
		}
		return out
	default:
		return v
	}
}
