package config

import "fmt"

// Topology describes the site/variable replication placement of §3 and its
// §3.1 override knobs. The zero-config engine always uses DefaultTopology.
type Topology struct {
	// SiteCount is the number of sites, 1..SiteCount.
	SiteCount int
	// VariableCount is the number of variables, 1..VariableCount.
	VariableCount int
	// InitialValueStep is the multiplier for a variable's initial committed
	// value: variable i starts at InitialValueStep * i.
	InitialValueStep int
}

// DefaultTopology returns the spec's fixed topology: 10 sites, 20 variables,
// initial value 10*i.
func DefaultTopology() Topology {
	return Topology{
		SiteCount:        10,
		VariableCount:    20,
		InitialValueStep: 10,
	}
}

// Validate reports whether the topology is well-formed.
func (t Topology) Validate() error {
	if t.SiteCount <= 0 {
		return fmt.Errorf("site count must be positive: %d", t.SiteCount)
	}
	if t.VariableCount <= 0 {
		return fmt.Errorf("variable count must be positive: %d", t.VariableCount)
	}
	if t.InitialValueStep <= 0 {
		return fmt.Errorf("initial value step must be positive: %d", t.InitialValueStep)
	}
	return nil
}

// InitialValue returns the variable's initial committed value.
func (t Topology) InitialValue(variableID int) int {
	return t.InitialValueStep * variableID
}

// HostingSites returns the ascending list of site ids (1-based) that hold a
// replica of variableID, per §3's placement rule generalized to SiteCount:
// even-indexed variables replicate to every site; odd-indexed variables live
// only at site (variableID % SiteCount) + 1.
func (t Topology) HostingSites(variableID int) []int {
	if variableID%2 == 0 {
		sites := make([]int, 0, t.SiteCount)
		for s := 1; s <= t.SiteCount; s++ {
			sites = append(sites, s)
		}
		return sites
	}
	return []int{variableID%t.SiteCount + 1}
}

// OddVariablesAt returns the ascending list of odd-indexed variable ids
// hosted solely at siteID. With the default 20-variable/10-site topology two
// odd variables collide onto the same site (e.g. x1 and x11 both live only
// at site 2); recovery must re-run the wait list for all of them.
func (t Topology) OddVariablesAt(siteID int) []int {
	var vars []int
	for v := 1; v <= t.VariableCount; v++ {
		if v%2 == 0 {
			continue
		}
		if v%t.SiteCount+1 == siteID {
			vars = append(vars, v)
		}
	}
	return vars
}
