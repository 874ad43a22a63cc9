package graph

import (
	"fmt"
	"strings"
)

// compileMatch renders p as MATCH/WHERE clauses binding the matched node to n and the
// i-th relationship neighbour to m<i>. Every RelPattern gets its own MATCH so each one is
// satisfied independently of the others. Identifiers must be validated beforehand.
func compileMatch(p Pattern) (string, map[string]interface{}) {
	var b strings.Builder
	params := make(map[string]interface{})
	var conds []string

	fmt.Fprintf(&b, "MATCH (n:%s)", p.Label)
	for _, k := range p.Props.Keys() {
		name := "n_" + k
		conds = append(conds, fmt.Sprintf("n.%s = $%s", k, name))
		params[name] = p.Props[k]
	}

	for i, rel := range p.Rels {
		m := fmt.Sprintf("m%d", i)
		target := m
		if rel.Label != "" {
			target = m + ":" + rel.Label
		}
		b.WriteString(" MATCH ")
		b.WriteString(relClause("n", rel.Type, rel.Direction, target))
		for _, k := range rel.Props.Keys() {
			name := m + "_" + k
			conds = append(conds, fmt.Sprintf("%s.%s = $%s", m, k, name))
			params[name] = rel.Props[k]
		}
	}

	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	return b.String(), params
}

// relClause renders (from)-[:T]->(to) in the given direction.
func relClause(from, relType string, dir Direction, to string) string {
	switch dir {
	case Outgoing:
		return fmt.Sprintf("(%s)-[:%s]->(%s)", from, relType, to)
	case Incoming:
		return fmt.Sprintf("(%s)<-[:%s]-(%s)", from, relType, to)
	default:
		return fmt.Sprintf("(%s)-[:%s]-(%s)", from, relType, to)
	}
}

// compileEdgeFilter renders a MATCH binding the relationship to r.
func compileEdgeFilter(f EdgeFilter) (string, map[string]interface{}) {
	params := make(map[string]interface{})
	from, to := "a", "b"
	var conds []string
	if f.From != nil {
		from = "a:" + f.From.Label
		conds = append(conds, "a.id = $from")
		params["from"] = f.From.ID
	}
	if f.To != nil {
		to = "b:" + f.To.Label
		conds = append(conds, "b.id = $to")
		params["to"] = f.To.ID
	}
	q := fmt.Sprintf("MATCH (%s)-[r:%s]->(%s)", from, f.Type, to)
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return q, params
}

func checkEdgeFilter(f EdgeFilter) error {
	if err := checkIdentifiers("relationship type", f.Type); err != nil {
		return err
	}
	if f.From != nil {
		if err := checkIdentifiers("label", f.From.Label); err != nil {
			return err
		}
	}
	if f.To != nil {
		if err := checkIdentifiers("label", f.To.Label); err != nil {
			return err
		}
	}
	return nil
}
