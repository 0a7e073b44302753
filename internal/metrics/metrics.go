package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation counters exported on /metrics.
var (
	Allocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostel_allocations_total",
		Help: "Successful room allocations.",
	})
	Deallocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostel_deallocations_total",
		Help: "Successful room deallocations.",
	})
	AttendanceMarked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostel_attendance_marked_total",
		Help: "Attendance records upserted.",
	})
	ComplaintsFiled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostel_complaints_filed_total",
		Help: "Complaints created.",
	})
)
