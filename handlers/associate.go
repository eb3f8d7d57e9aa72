package handlers

import (
	"strings"

	"github.com/bsaid97/go-boundary-fixer/utils"
)

const DefaultDelimiter = ", "

type AssociationOptions struct {
	// ChildrenProperty is the parent property holding the delimited list of
	// child names.
	ChildrenProperty string
	Delimiter        string
	// ParentField receives the parent's name on every matched child.
	ParentField string
	// ChildNamesField receives the parent's full child-name list. Empty
	// disables it.
	ChildNamesField string
	// CopyProperties are further parent properties copied verbatim.
	CopyProperties []string
}

// ParentAssociation is the parsed view of one parent region.
type ParentAssociation struct {
	ParentID   string
	ChildNames []string
	Properties map[string]interface{}
}

type UnmatchedName struct {
	Parent string
	Name   string
	// NearMiss is a child name that equals Name once case and whitespace are
	// ignored.
	NearMiss string
}

type Reassignment struct {
	Child string
	From  string
	To    string
}

type AssociationReport struct {
	Parents         int
	SkippedParents  int
	Matches         int
	UnmatchedNames  []UnmatchedName
	Reassignments   []Reassignment
	DroppedChildren []string
}

// SplitChildNames splits a delimited name list, keeping order and dropping
// empty entries.
func SplitChildNames(s string, delimiter string) []string {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	names := make([]string, 0)
	for _, name := range strings.Split(s, delimiter) {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// NewParentAssociation reads the child-name list off a parent. Lists that
// were already split by an earlier run are accepted as is.
func NewParentAssociation(parent *utils.Region, opts AssociationOptions) ParentAssociation {
	pa := ParentAssociation{
		ParentID:   parent.Name,
		Properties: parent.Properties,
	}
	switch v := parent.Properties[opts.ChildrenProperty].(type) {
	case string:
		pa.ChildNames = SplitChildNames(v, opts.Delimiter)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				pa.ChildNames = append(pa.ChildNames, s)
			}
		}
	case []string:
		pa.ChildNames = append(pa.ChildNames, v...)
	}
	return pa
}

// Associate attaches children to parents by exact name. Parents run in file
// order; for each listed name the first child in file order with that name is
// claimed. A later parent claiming the same child overwrites the earlier one.
// Children no parent claims are dropped from the result.
func Associate(parents []*utils.Region, children []*utils.Region, opts AssociationOptions) ([]*utils.Region, AssociationReport) {
	report := AssociationReport{Parents: len(parents)}
	logger := utils.L()

	nearMisses := make(map[string]string)
	for _, child := range children {
		key := normaliseName(child.Name)
		if _, ok := nearMisses[key]; !ok {
			nearMisses[key] = child.Name
		}
	}

	owner := make(map[int]string)
	for _, parent := range parents {
		pa := NewParentAssociation(parent, opts)
		if pa.ParentID == "" {
			report.SkippedParents++
			logger.Warn("parent has no name, skipping", "children", strings.Join(pa.ChildNames, opts.Delimiter))
			continue
		}
		if parent.Properties == nil {
			parent.Properties = make(map[string]interface{})
		}
		parent.Properties[opts.ChildrenProperty] = pa.ChildNames

		for _, name := range pa.ChildNames {
			idx := findChild(children, name)
			if idx < 0 {
				unmatched := UnmatchedName{Parent: pa.ParentID, Name: name}
				if candidate, ok := nearMisses[normaliseName(name)]; ok {
					unmatched.NearMiss = candidate
				}
				report.UnmatchedNames = append(report.UnmatchedNames, unmatched)
				logger.Info("no child matches name", "parent", pa.ParentID, "name", name, "near_miss", unmatched.NearMiss)
				continue
			}

			if previous, ok := owner[idx]; ok && previous != pa.ParentID {
				report.Reassignments = append(report.Reassignments, Reassignment{Child: name, From: previous, To: pa.ParentID})
				logger.Warn("child claimed by more than one parent, last one wins", "child", name, "from", previous, "to", pa.ParentID)
			}
			attach(children[idx], pa, opts)
			owner[idx] = pa.ParentID
			report.Matches++
		}
	}

	kept := make([]*utils.Region, 0, len(owner))
	for i, child := range children {
		if _, ok := owner[i]; ok {
			kept = append(kept, child)
			continue
		}
		report.DroppedChildren = append(report.DroppedChildren, child.Name)
		logger.Info("child has no parent, dropping", "name", child.Name)
	}

	logger.Info("association finished",
		"parents", report.Parents,
		"children", len(children),
		"kept", len(kept),
		"dropped", len(report.DroppedChildren),
		"unmatched_names", len(report.UnmatchedNames))
	return kept, report
}

func findChild(children []*utils.Region, name string) int {
	for i, child := range children {
		if child.Name == name {
			return i
		}
	}
	return -1
}

func attach(child *utils.Region, pa ParentAssociation, opts AssociationOptions) {
	if child.Properties == nil {
		child.Properties = make(map[string]interface{})
	}
	child.Properties[opts.ParentField] = pa.ParentID
	if opts.ChildNamesField != "" {
		child.Properties[opts.ChildNamesField] = append([]string(nil), pa.ChildNames...)
	}
	for _, key := range opts.CopyProperties {
		if value, ok := pa.Properties[key]; ok {
			child.Properties[key] = value
		}
	}
}

func normaliseName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ParentOf returns the parent recorded on a child by Associate.
func ParentOf(child *utils.Region, parentField string) string {
	return utils.FormatProperty(child.Properties[parentField])
}
