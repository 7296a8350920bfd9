package entity

// Lane is a delivery path through the broker. Its value is the routing key.
type Lane string

const (
	LaneCritical Lane = "critical"
	LaneNormal   Lane = "normal"
)

// Lanes lists every lane in consumption order.
var Lanes = []Lane{LaneCritical, LaneNormal}

var priorityLanes = map[Priority]Lane{
	PriorityCritical: LaneCritical,
	PriorityWarning:  LaneCritical,
	PriorityNormal:   LaneNormal,
	PriorityInfo:     LaneNormal,
}

// LaneFor maps a priority to its lane. Unknown priorities go to the normal lane.
func LaneFor(p Priority) Lane {
	if lane, ok := priorityLanes[p]; ok {
		return lane
	}
	return LaneNormal
}

func (l Lane) RoutingKey() string {
	return string(l)
}
