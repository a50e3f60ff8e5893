// Package normalise maps raw CLI output into the canonical POWEFF metric
// records. Each supported device family has its own Normaliser parsing the
// same logical quantities (power, traffic, environmentals) into the
// identical schema; adding a family means adding one implementation and
// registering it, not touching the existing ones.
package normalise

import (
	"github.com/susgrid/poweff-collector/pkg/models"
)

// Normaliser is the per-family parsing capability. Implementations are
// pure: same samples in, same records out, no I/O.
type Normaliser interface {
	// Commands returns the CLI command set to execute for this family,
	// keyed by the logical name the parser looks up samples under.
	Commands() map[string]string

	// Normalise parses the ordered raw samples of one collection pass.
	// Individual unparseable fields become absent, never zero; a pass
	// with no usable fields at all yields a nil Power record and a
	// warning, not an error.
	Normalise(site models.Site, device models.Device, samples []models.RawSample) (*Result, error)
}

// Result is everything one collection pass normalised to.
type Result struct {
	Power      *models.PowerMetricRecord
	PSUs       []models.PsuMetricRecord
	Interfaces []models.InterfaceMetricRecord

	// Warnings report degraded parsing: fields dropped, sections
	// missing. They are logged upstream and never abort the pipeline.
	Warnings []string
}

// Registry holds one Normaliser per family.
type Registry struct {
	normalisers map[models.Family]Normaliser
}

// NewRegistry returns a registry with all built-in families registered.
func NewRegistry() *Registry {
	r := &Registry{normalisers: make(map[models.Family]Normaliser)}
	r.Register(models.FamilyCat9300, NewCat9300Normaliser())
	r.Register(models.FamilyASR1k, NewASR1kNormaliser())
	return r
}

// Register adds or replaces the normaliser for a family.
func (r *Registry) Register(family models.Family, n Normaliser) {
	r.normalisers[family] = n
}

// Get returns the normaliser for a family.
func (r *Registry) Get(family models.Family) (Normaliser, bool) {
	n, ok := r.normalisers[family]
	return n, ok
}

// Commands exposes the family command sets to the collector.
func (r *Registry) Commands(family models.Family) (map[string]string, bool) {
	n, ok := r.normalisers[family]
	if !ok {
		return nil, false
	}
	return n.Commands(), true
}

// samplesByCommand indexes a pass's samples by logical command name.
func samplesByCommand(samples []models.RawSample) map[string]string {
	byCommand := make(map[string]string, len(samples))
	for _, s := range samples {
		byCommand[s.Command] = s.Output
	}
	return byCommand
}
