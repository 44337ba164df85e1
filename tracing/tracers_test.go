package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Counting tracers", func() {
	var (
		clock  *ManualClock
		domain *testDomain
	)

	BeforeEach(func() {
		clock = &ManualClock{}
		domain = newTestDomain("VMM")
	})

	It("should sum the time of tasks of one kind", func() {
		tracer := NewTotalTimeTracer(clock, KindFilter("fault"))
		CollectTrace(domain, tracer)

		clock.Set(1)
		StartTask("1", "", domain, "fault", "read", nil)
		StartTask("2", "", domain, "page_out", "swap", nil)
		clock.Set(3)
		EndTask("1", domain)
		EndTask("2", domain)
		StartTask("3", "", domain, "fault", "write", nil)
		clock.Set(3.5)
		EndTask("3", domain)

		Expect(tracer.TotalTime()).To(BeNumerically("~", 2.5, 1e-9))
		Expect(tracer.Count()).To(Equal(2))
		Expect(tracer.Longest()).To(BeNumerically("~", 2, 1e-9))
	})

	It("should ignore tasks that ended without a recorded start", func() {
		tracer := NewTotalTimeTracer(clock, KindFilter("page_in"))
		StartTask("1", "", domain, "page_in", "zero", nil)
		CollectTrace(domain, tracer)

		clock.Set(2)
		EndTask("1", domain)

		Expect(tracer.TotalTime()).To(BeZero())
		Expect(tracer.Count()).To(BeZero())
	})

	It("should average the time of tasks", func() {
		tracer := NewAverageTimeTracer(clock, KindFilter("fault"))
		CollectTrace(domain, tracer)

		StartTask("1", "", domain, "fault", "read", nil)
		clock.Set(2)
		EndTask("1", domain)
		StartTask("2", "", domain, "fault", "read", nil)
		clock.Set(6)
		EndTask("2", domain)

		Expect(tracer.TotalCount()).To(Equal(uint64(2)))
		Expect(tracer.AverageTime()).To(BeNumerically("~", 3, 1e-9))
	})

	It("should ignore tasks that never started", func() {
		tracer := NewAverageTimeTracer(clock, KindFilter("fault"))
		CollectTrace(domain, tracer)

		EndTask("9", domain)

		Expect(tracer.TotalCount()).To(BeZero())
	})

	It("should count steps", func() {
		tracer := NewStepCountTracer(KindFilter("fault"))
		CollectTrace(domain, tracer)

		StartTask("1", "", domain, "fault", "read", nil)
		AddTaskStep("1", domain, "retry")
		AddTaskStep("1", domain, "retry")
		AddTaskStep("1", domain, "resolved")
		EndTask("1", domain)

		StartTask("2", "", domain, "fault", "read", nil)
		AddTaskStep("2", domain, "retry")
		EndTask("2", domain)

		StartTask("3", "", domain, "page_in", "zero", nil)
		AddTaskStep("3", domain, "retry")
		EndTask("3", domain)

		Expect(tracer.GetStepNames()).To(Equal([]string{"retry", "resolved"}))
		Expect(tracer.GetStepCount("retry")).To(Equal(uint64(3)))
		Expect(tracer.GetTaskCount("retry")).To(Equal(uint64(2)))
		Expect(tracer.GetTaskCount("resolved")).To(Equal(uint64(1)))
	})
})
