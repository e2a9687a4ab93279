package dsl

import (
	"fmt"

	"github.com/aretw0/canopy/pkg/domain"
)

// RootBuilder collects the root trees of a hierarchy.
type RootBuilder struct {
	trees []*ElementBuilder
	def   *domain.DefaultBranch
}

// Root starts a hierarchy holding the given trees.
func Root(trees ...*ElementBuilder) *RootBuilder {
	return &RootBuilder{trees: trees}
}

// Add appends more trees.
func (r *RootBuilder) Add(trees ...*ElementBuilder) *RootBuilder {
	r.trees = append(r.trees, trees...)
	return r
}

// Default sets Root's default branch, run when no tree opens.
func (r *RootBuilder) Default(guard *domain.Value, actions ...domain.Action) *RootBuilder {
	r.def = &domain.DefaultBranch{Guard: guard, Actions: actions}
	return r
}

// Build links and validates the hierarchy.
func (r *RootBuilder) Build() (*domain.Element, error) {
	root := &domain.Element{Kind: domain.KindRoot, Name: domain.RootName, Default: r.def}
	for _, tb := range r.trees {
		if tb.el.Kind != domain.KindTree {
			return nil, fmt.Errorf("root child %q must be built with Tree", tb.el.Name)
		}
		root.Branches = append(root.Branches, tb.Build())
	}
	if err := domain.Link(root); err != nil {
		return nil, fmt.Errorf("failed to link hierarchy: %w", err)
	}
	return root, nil
}

// MustBuild is Build for static hierarchies; it panics on error.
func (r *RootBuilder) MustBuild() *domain.Element {
	root, err := r.Build()
	if err != nil {
		panic(err)
	}
	return root
}
