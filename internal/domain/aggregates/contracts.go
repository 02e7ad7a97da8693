package aggregates

// WriteTxOwnership says where an aggregate write draws its transaction boundary.
type WriteTxOwnership string

const (
	// WriteTxNested writes open their own transaction, or a savepoint when the dbctx.Context
	// already carries the caller's transaction. A failed write rolls back only its savepoint
	// and the caller still decides whether the outer transaction commits.
	WriteTxNested WriteTxOwnership = "nested_savepoint"
)

// ReadPolicy says which reads an aggregate exposes.
type ReadPolicy string

const (
	// ReadPolicyInvariantScoped exposes only the reads a write needs to check its invariants.
	ReadPolicyInvariantScoped ReadPolicy = "invariant_scoped_reads"
	// ReadPolicyTableRepoQueries leaves listings and lineage queries to the table repos.
	ReadPolicyTableRepoQueries ReadPolicy = "table_repo_queries"
)

// Contract is the self-description an aggregate reports at wiring time.
type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	ReadPolicy       ReadPolicy
	Notes            string
}

// Aggregate is implemented by every write-side aggregate.
type Aggregate interface {
	Contract() Contract
}

// JoinsCallerTx reports whether a write made under the caller's transaction stays inside it.
func (c Contract) JoinsCallerTx() bool {
	return c.WriteTxOwnership == WriteTxNested
}
