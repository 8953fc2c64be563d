package recovery

import "github.com/rangekit/rangekit/pkg/schema"

// RangeType is the class of ranges a recovery plan covers (spec.md
// §4.13 "per range type (ROOT | METADATA | SYSTEM | USER)").
type RangeType int

const (
	RangeTypeRoot RangeType = iota
	RangeTypeMetadata
	RangeTypeSystem
	RangeTypeUser
)

// String renders the range type the way spec.md names it.
func (t RangeType) String() string {
	switch t {
	case RangeTypeRoot:
		return "ROOT"
	case RangeTypeMetadata:
		return "METADATA"
	case RangeTypeSystem:
		return "SYSTEM"
	case RangeTypeUser:
		return "USER"
	default:
		return "UNKNOWN"
	}
}

// FragmentID names one commit-log fragment of a dead server's log.
// Commit logs in this module are one-per-range
// (internal/rsrv.LoadRequest.Dir/LogDir is scoped to a single range), so
// a fragment's owning range is already known at plan-construction
// time; replay never needs to route individual cells by row the way a
// shared-log design would.
type FragmentID struct {
	Range  schema.QualifiedRange
	LogDir string
	Num    int64
}

// ReceiverAssignment names the server that should own a range once
// recovery commits it, and the lifecycle state it resumes in.
type ReceiverAssignment struct {
	Host  string
	State schema.RangeState
}

// Plan is one recovery plan for a single dead server's ranges of one
// range type: a replay plan ({fragment_id → replayer_server}) and a
// receiver plan ({qualified_range → receiver_server, range_state})
// (spec.md §4.13). Generation is bumped each time the Master reissues
// a plan for the same dead server (spec.md §4.13 "Idempotence");
// receivers use it to detect and discard a superseded plan's
// in-flight progress.
type Plan struct {
	Generation uint64
	Type       RangeType
	Replay     map[FragmentID]string
	Receivers  map[schema.QualifiedRange]ReceiverAssignment
}

// replayersByHost groups the replay plan's fragments by the replayer
// host assigned to each.
func (p *Plan) replayersByHost() map[string][]FragmentID {
	out := make(map[string][]FragmentID)
	for fid, host := range p.Replay {
		out[host] = append(out[host], fid)
	}
	return out
}

// receiverHosts lists the distinct receiver hosts named by the plan.
func (p *Plan) receiverHosts() []string {
	seen := make(map[string]bool, len(p.Receivers))
	hosts := make([]string, 0, len(p.Receivers))
	for _, a := range p.Receivers {
		if !seen[a.Host] {
			seen[a.Host] = true
			hosts = append(hosts, a.Host)
		}
	}
	return hosts
}
