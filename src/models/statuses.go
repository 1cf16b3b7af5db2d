package models

import "fmt"

type StockStatus string

const (
	StockStatusActive   StockStatus = "active"
	StockStatusDelisted StockStatus = "delisted"
	StockStatusInactive StockStatus = "inactive"
)

type ContractStatus string

const (
	ContractStatusActive  ContractStatus = "active"
	ContractStatusExpired ContractStatus = "expired"
)

// ScheduleStatus tracks what the collection loop is doing right now. The
// paused flag lives on the schedule itself; pausing does not change status.
type ScheduleStatus string

const (
	ScheduleStatusIdle    ScheduleStatus = "idle"
	ScheduleStatusRunning ScheduleStatus = "running"
	ScheduleStatusError   ScheduleStatus = "error"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type StockLogStatus string

const (
	StockLogSuccess StockLogStatus = "success"
	StockLogFailed  StockLogStatus = "failed"
	StockLogSkipped StockLogStatus = "skipped"
)

type MonitoringStatus string

const (
	MonitoringActive MonitoringStatus = "active"
	MonitoringPaused MonitoringStatus = "paused"
)

func (s MonitoringStatus) Validate() error {
	if s != MonitoringActive && s != MonitoringPaused {
		return fmt.Errorf("MonitoringStatus: Validate: invalid monitoring status: %s", s)
	}

	return nil
}
