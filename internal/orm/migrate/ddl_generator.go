package migrate

import (
	"fmt"
	"strings"

	"github.com/reposit-go/reposit/internal/orm/dialect"
	"github.com/reposit-go/reposit/internal/orm/schema"
)

// DDLGenerator generates CREATE TABLE statements from entity metadata
type DDLGenerator struct {
	dialect    dialect.Dialect
	typeMapper *TypeMapper
}

// NewDDLGenerator creates a new DDL generator
func NewDDLGenerator(d dialect.Dialect) *DDLGenerator {
	return &DDLGenerator{
		dialect:    d,
		typeMapper: NewTypeMapper(d),
	}
}

// GenerateCreateTable generates the CREATE TABLE statement of m: one column
// per mapped member, the primary key and a constraint per foreign key the
// type holds
func (g *DDLGenerator) GenerateCreateTable(m *schema.EntityMetadata) (string, error) {
	if m == nil {
		return "", fmt.Errorf("entity metadata cannot be nil")
	}

	indexed := make(map[*schema.Column]bool)
	for _, c := range m.PrimaryKey {
		indexed[c] = true
	}
	fks := g.foreignKeys(m)
	for _, fk := range fks {
		for _, c := range fk.Columns {
			indexed[c] = true
		}
	}

	defs := make([]string, 0, len(m.Columns)+len(fks)+1)
	inlineKey := false
	for _, c := range m.Columns {
		def, inline, err := g.generateColumnDefinition(c, indexed[c])
		if err != nil {
			return "", fmt.Errorf("table %s: %w", m.Table, err)
		}
		inlineKey = inlineKey || inline
		defs = append(defs, def)
	}

	if !inlineKey {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)",
			g.dialect.Quote("PK_"+m.Table), g.quoteAll(m.KeyNames())))
	}

	for _, fk := range fks {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			g.dialect.Quote(fk.Name),
			g.quoteAll(fk.ColumnNames()),
			g.dialect.Quote(fk.Table),
			g.quoteAll(referenceNames(fk))))
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(g.dialect.Quote(m.Table))
	b.WriteString(" (\n")
	for i, def := range defs {
		b.WriteString("  ")
		b.WriteString(def)
		if i < len(defs)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String(), nil
}

// generateColumnDefinition renders one column. inline reports a key that
// was declared on the column itself.
func (g *DDLGenerator) generateColumnDefinition(c *schema.Column, indexed bool) (string, bool, error) {
	name := g.dialect.Quote(c.Name)
	if c.Identity {
		def, inline := g.dialect.IdentityColumn()
		return name + " " + def, inline, nil
	}

	columnType, err := g.typeMapper.MapType(c, indexed)
	if err != nil {
		return "", false, err
	}
	return name + " " + columnType + " " + g.typeMapper.MapNullability(c), false, nil
}

// foreignKeys returns the keys held by m in navigation declaration order,
// one constraint per distinct column list
func (g *DDLGenerator) foreignKeys(m *schema.EntityMetadata) []*schema.ForeignKey {
	var out []*schema.ForeignKey
	seen := make(map[string]bool)
	for _, name := range m.NavOrder {
		fk, ok := m.ForeignKeys[name]
		if !ok {
			continue
		}
		sig := fk.Table + ":" + strings.Join(fk.ColumnNames(), ",")
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, fk)
	}
	return out
}

func (g *DDLGenerator) quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = g.dialect.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

func referenceNames(fk *schema.ForeignKey) []string {
	names := make([]string, len(fk.References))
	for i, c := range fk.References {
		names[i] = c.Name
	}
	return names
}
