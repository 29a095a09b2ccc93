package models

import "github.com/thoriumlabs/thorium/pkg/apierrors"

// Stage is a parallel set of image executions within a Pipeline.
type Stage struct {
	Images []string `json:"images"`
}

// Pipeline is an ordered sequence of stages.
type Pipeline struct {
	Name        string   `json:"name"`
	Group       string   `json:"group"`
	Order       []Stage  `json:"order"`
	SLADefault  int64    `json:"sla_default_seconds"`
	Triggers    []string `json:"triggers,omitempty"`
	Bans        []string `json:"bans,omitempty"`
}

// Banned reports whether the pipeline currently carries any ban.
func (p *Pipeline) Banned() bool { return len(p.Bans) > 0 }

// ImageInOrder reports whether image appears anywhere in p.Order, the
// invariant every reaction's argument overlay must satisfy.
func (p *Pipeline) ImageInOrder(image string) bool {
	for _, stage := range p.Order {
		for _, img := range stage.Images {
			if img == image {
				return true
			}
		}
	}
	return false
}

// Validate checks the pipeline's structural invariants: non-empty name and
// group, at least one stage, every stage non-empty, positive default SLA.
func (p *Pipeline) Validate() error {
	if err := ValidateName("pipeline.name", p.Name); err != nil {
		return err
	}
	if err := ValidateName("pipeline.group", p.Group); err != nil {
		return err
	}
	if len(p.Order) == 0 {
		return apierrors.NewInvalid("pipeline %q: must have at least one stage", p.Name)
	}
	for i, stage := range p.Order {
		if len(stage.Images) == 0 {
			return apierrors.NewInvalid("pipeline %q: stage %d has no images", p.Name, i)
		}
	}
	return ValidateSLA(p.SLADefault)
}
