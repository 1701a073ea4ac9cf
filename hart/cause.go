package hart

// Exception causes.
const (
	CauseInstAddrMisal   uint64 = 0
	CauseInstAccFault    uint64 = 1
	CauseIllegalInst     uint64 = 2
	CauseBreakpoint      uint64 = 3
	CauseLoadAddrMisal   uint64 = 4
	CauseLoadAccFault    uint64 = 5
	CauseStoreAddrMisal  uint64 = 6
	CauseStoreAccFault   uint64 = 7
	CauseEcallU          uint64 = 8
	CauseEcallS          uint64 = 9
	CauseEcallVs         uint64 = 10
	CauseEcallM          uint64 = 11
	CauseInstPageFault   uint64 = 12
	CauseLoadPageFault   uint64 = 13
	CauseStorePageFault  uint64 = 15
	CauseSwCheck         uint64 = 18
	CauseInstGuestFault  uint64 = 20
	CauseLoadGuestFault  uint64 = 21
	CauseVirtualInst     uint64 = 22
	CauseStoreGuestFault uint64 = 23
)

// Interrupt causes (without the top bit).
const (
	IntSsi  uint64 = 1
	IntVssi uint64 = 2
	IntMsi  uint64 = 3
	IntSti  uint64 = 5
	IntVsti uint64 = 6
	IntMti  uint64 = 7
	IntSei  uint64 = 9
	IntVsei uint64 = 10
	IntMei  uint64 = 11
	IntSgei uint64 = 12
)

// StopKind tags a control-flow exit from the run loop.
type StopKind int

// Stop kinds delivered to the outer loop.
const (
	StopSnapshot StopKind = iota
	StopToHost
	StopIllegalLimit
	StopUserRequest
	StopWfiTimeout
)

// StopEvent is a long-running-control-flow exit: the step that raised
// it completed, the outer loop decides what to do.
type StopEvent struct {
	Kind    StopKind
	Payload uint64
}
