package orchestrator

import (
	"github.com/shaiso/Ingestor/internal/domain"
)

// RunStats: сводка по статусам узлов run.
type RunStats struct {
	Total     int `json:"total"`
	Waiting   int `json:"waiting"`
	Scheduled int `json:"scheduled"`
	Running   int `json:"running"`
	Complete  int `json:"complete"`
	Failed    int `json:"failed"`
}

// Stats считает узлы по статусам.
func Stats(nodes []*domain.PipelineRunTask) RunStats {
	var s RunStats
	for _, n := range nodes {
		s.Total++
		switch n.Status {
		case domain.NodeStatusWaiting:
			s.Waiting++
		case domain.NodeStatusScheduled:
			s.Scheduled++
		case domain.NodeStatusRunning:
			s.Running++
		case domain.NodeStatusComplete:
			s.Complete++
		case domain.NodeStatusFailed:
			s.Failed++
		}
	}
	return s
}

// InFlight: число узлов, запланированных или выполняющихся.
func (s RunStats) InFlight() int {
	return s.Scheduled + s.Running
}

// Progress возвращает долю завершённых узлов (0..1).
func (s RunStats) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Complete) / float64(s.Total)
}

// runStateFor: ACTIVE, пока есть узлы в работе, иначе READY.
func runStateFor(nodes []*domain.PipelineRunTask) domain.RunState {
	if Stats(nodes).InFlight() > 0 {
		return domain.RunStateActive
	}
	return domain.RunStateReady
}
