package coherence

// Stats are the counters of a module. Counters with the Retry prefix only
// count the attempts that follow a lock conflict.
type Stats struct {
	Loads    uint64
	Stores   uint64
	NCStores uint64
	Messages uint64

	CoalescedReads    uint64
	CoalescedWrites   uint64
	CoalescedNCWrites uint64

	Accesses      uint64
	RetryAccesses uint64

	Reads           uint64
	ReadHits        uint64
	ReadMisses      uint64
	RetryReads      uint64
	RetryReadHits   uint64
	RetryReadMisses uint64

	Writes           uint64
	WriteHits        uint64
	WriteMisses      uint64
	RetryWrites      uint64
	RetryWriteHits   uint64
	RetryWriteMisses uint64

	NCWrites           uint64
	NCWriteHits        uint64
	NCWriteMisses      uint64
	RetryNCWrites      uint64
	RetryNCWriteHits   uint64
	RetryNCWriteMisses uint64

	ReadProbes  uint64
	WriteProbes uint64

	DirEntryConflicts      uint64
	RetryDirEntryConflicts uint64

	Evictions    uint64
	DataAccesses uint64
}

func (s *Stats) countLookup(op *Operation) {
	switch {
	case op.dir == DirectionDownUp:
		if op.write || op.ncWrite {
			s.WriteProbes++
		} else {
			s.ReadProbes++
		}
	case op.read:
		hit := op.hit && op.state.IsValid()
		countClass(hit, op.retry,
			&s.Reads, &s.ReadHits, &s.ReadMisses,
			&s.RetryReads, &s.RetryReadHits, &s.RetryReadMisses)
	case op.write:
		hit := op.hit && op.state.CanWrite()
		countClass(hit, op.retry,
			&s.Writes, &s.WriteHits, &s.WriteMisses,
			&s.RetryWrites, &s.RetryWriteHits, &s.RetryWriteMisses)
	case op.ncWrite:
		hit := op.hit && op.state.IsValid()
		countClass(hit, op.retry,
			&s.NCWrites, &s.NCWriteHits, &s.NCWriteMisses,
			&s.RetryNCWrites, &s.RetryNCWriteHits, &s.RetryNCWriteMisses)
	}
}

func countClass(
	hit, retry bool,
	total, hits, misses *uint64,
	retryTotal, retryHits, retryMisses *uint64,
) {
	*total++
	if hit {
		*hits++
	} else {
		*misses++
	}

	if !retry {
		return
	}

	*retryTotal++
	if hit {
		*retryHits++
	} else {
		*retryMisses++
	}
}
