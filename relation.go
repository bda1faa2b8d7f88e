package rowscope

// RelationKind represents the cardinality of a relation.
type RelationKind string

const (
	RelationHasOne     RelationKind = "has_one"
	RelationHasMany    RelationKind = "has_many"
	RelationManyToMany RelationKind = "many_to_many"
)

// Relation declares a traversal from one base entity to another. Source
// and Target are logical entity names; subtypes never declare relations
// of their own, they inherit the base entity's.
//
// ForeignKey, JoinTable and TargetKey may be left empty, in which case
// they are derived at registration time from the base entity names by
// the fixed naming convention.
type Relation struct {
	Name       string
	Source     string
	Target     string
	Kind       RelationKind
	ForeignKey string
	// JoinTable and TargetKey apply to many-to-many relations only.
	JoinTable string
	TargetKey string
}

// resolvedRelation is the registration-time resolved form: every derived
// name has been filled in, so query composition never derives anything.
type resolvedRelation struct {
	Relation
	target *Entity
}
