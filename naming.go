package rowscope

import (
	"sort"
	"strings"
	"unicode"
)

// snakeCase converts a logical name like "UserProfile" to "user_profile".
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// pluralize applies the fixed naming convention used to derive a table
// name from a logical entity name.
func pluralize(word string) string {
	switch {
	case strings.HasSuffix(word, "y") && !strings.HasSuffix(word, "ay") &&
		!strings.HasSuffix(word, "ey") && !strings.HasSuffix(word, "oy") &&
		!strings.HasSuffix(word, "uy"):
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(word, "s"), strings.HasSuffix(word, "x"),
		strings.HasSuffix(word, "z"), strings.HasSuffix(word, "ch"),
		strings.HasSuffix(word, "sh"):
		return word + "es"
	default:
		return word + "s"
	}
}

// defaultTableName derives the physical table for a base entity when no
// explicit binding is given. Subtypes never use this: their table must be
// declared explicitly.
func defaultTableName(logicalName string) string {
	return pluralize(snakeCase(logicalName))
}

// defaultForeignKey derives a foreign-key column from an entity's logical
// name. Key derivation always starts from the base entity's identity, so
// records read through a subtype still join on the base entity's key.
func defaultForeignKey(logicalName string) string {
	return snakeCase(logicalName) + "_id"
}

// defaultJoinTable derives the join table for a many-to-many relation
// from the two participating base entity names, in sorted order.
func defaultJoinTable(sourceName, targetName string) string {
	parts := []string{snakeCase(sourceName), snakeCase(targetName)}
	sort.Strings(parts)
	return parts[0] + "_" + parts[1]
}
