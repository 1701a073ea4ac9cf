// Package perfapi lets an external timing model issue fetch, decode,
// execute, retire, drain and flush calls against a set of in-flight
// instruction packets while the architectural hart remains the
// authoritative ISA reference.
//
// A speculative execute single-steps the hart with the packet's
// operand values poked in, records the outcome, and then restores
// every register, CSR and memory byte the step touched, so the hart
// is unchanged from the caller's perspective. Retire replays the same
// instruction architecturally and asserts the recorded outcome still
// holds. Ordering violations (tag reuse, execute before decode,
// retire before execute, mismatch at retire) are programmer errors
// and panic.
package perfapi

import (
	"fmt"
	"sort"

	"github.com/sarchlab/r5sim/hart"
	"github.com/sarchlab/r5sim/insts"
)

type trapRecord struct {
	cause  uint64
	epc    uint64
	target uint64
}

type memUndo struct {
	pa   uint64
	data []byte
}

// PerfApi is the speculative engine for one hart.
type PerfApi struct {
	hart *hart.Hart
	dec  *insts.Decoder

	packets map[uint64]*Packet
	lastTag uint64

	// prevFetch is the most recently fetched packet. Its predicted
	// next PC is backfilled from the following fetch's address.
	prevFetch *Packet

	// Producer slots: the tag of the youngest in-flight packet that
	// writes each register. Zero means no in-flight producer.
	prodInt [32]uint64
	prodFp  [32]uint64
	prodVec [32]uint64
	prodCsr map[uint16]uint64

	// capturing is non-nil while the speculative step runs; the store
	// watcher journals pre-images into journal during that window.
	capturing *Packet
	journal   []memUndo

	lastTrap *trapRecord
}

// New builds an engine bound to h. The engine registers itself as a
// store watcher and trap listener on the hart.
func New(h *hart.Hart) *PerfApi {
	p := &PerfApi{
		hart:    h,
		dec:     insts.NewDecoder(h.Xlen() == hart.Xlen64),
		packets: map[uint64]*Packet{},
		prodCsr: map[uint16]uint64{},
	}
	h.Mem().WatchStores(p)
	h.AddTrapListener(p)
	return p
}

// OnStore implements mem.StoreWatcher. During a speculative step it
// journals the pre-image of every written range so the step can be
// undone afterwards.
func (p *PerfApi) OnStore(pa, size uint64) {
	if p.capturing == nil {
		return
	}
	if p.hart.Mem().IsMmio(pa) {
		p.capturing.DeviceSpace = true
		return
	}
	data, ok := p.hart.Mem().ReadBytes(pa, size)
	if !ok {
		return
	}
	p.journal = append(p.journal, memUndo{pa: pa, data: data})
}

// OnTrap implements hart.TrapListener.
func (p *PerfApi) OnTrap(h *hart.Hart, cause, epc, target uint64) {
	p.lastTrap = &trapRecord{cause: cause, epc: epc, target: target}
}

func (p *PerfApi) intMask() uint64 {
	return 1 << (uint(p.hart.Xlen()) - 1)
}

// vecGroup returns the number of vector registers in the effective
// destination group under the hart's current vtype.
func (p *PerfApi) vecGroup() int {
	vt, ok := p.hart.PeekCsr(hart.CsrVtype)
	if !ok || vt&p.intMask() != 0 {
		return 1
	}
	lmul := vt & 7
	if lmul <= 3 {
		return 1 << lmul
	}
	return 1
}

// Packet returns the in-flight packet for tag, or nil.
func (p *PerfApi) Packet(tag uint64) *Packet { return p.packets[tag] }

// InFlight returns the number of in-flight packets.
func (p *PerfApi) InFlight() int { return len(p.packets) }

func (p *PerfApi) mustPacket(tag uint64, op string) *Packet {
	pkt := p.packets[tag]
	if pkt == nil {
		panic(fmt.Sprintf("perfapi: %s on unknown tag %d", op, tag))
	}
	return pkt
}

// Fetch creates a packet for tag at virtual PC vpc. Tags must be
// nonzero and strictly increasing. The fetch address also backfills
// the previous packet's predicted next PC.
func (p *PerfApi) Fetch(tag, vpc uint64) {
	if tag == 0 || tag <= p.lastTag {
		panic(fmt.Sprintf("perfapi: fetch tag %d not above %d",
			tag, p.lastTag))
	}
	pkt := newPacket(tag, vpc)
	p.packets[tag] = pkt
	p.lastTag = tag
	if p.prevFetch != nil {
		p.prevFetch.PredNextIva = vpc
	}
	p.prevFetch = pkt
}

// Decode attaches the decoded form of raw to the packet and claims the
// producer slot for every destination register, capturing the prior
// producer so a flush can unwind the rename.
func (p *PerfApi) Decode(tag uint64, raw uint32) {
	pkt := p.mustPacket(tag, "decode")
	if pkt.decoded {
		panic(fmt.Sprintf("perfapi: decode called twice for tag %d", tag))
	}
	pkt.Inst = p.dec.Decode(raw)
	pkt.decoded = true

	inst := pkt.Inst
	rd := int(inst.Rd)
	if inst.HasIntDest() && rd != 0 {
		pkt.prevInt[rd] = p.prodInt[rd]
		p.prodInt[rd] = tag
		pkt.intDest = rd
	}
	if inst.IsFpDest() {
		pkt.prevFp[rd] = p.prodFp[rd]
		p.prodFp[rd] = tag
		pkt.fpDest = rd
	}
	if inst.IsVecDest() {
		group := p.vecGroup()
		for g := 0; g < group; g++ {
			pkt.prevVec[rd+g] = p.prodVec[rd+g]
			p.prodVec[rd+g] = tag
		}
		pkt.vecDest = rd
		pkt.vecGroup = group
	}
	if inst.Class() == insts.ClassCsr && csrWrites(inst) {
		pkt.prevCsr[inst.Csr] = p.prodCsr[inst.Csr]
		p.prodCsr[inst.Csr] = tag
		pkt.csrDest = int(inst.Csr)
	}
}

// producerBefore walks the rename chain starting at slotTag and
// returns the youngest executed in-flight producer older than tag.
// The next function maps a producer packet to the tag it captured for
// the slot at decode.
func (p *PerfApi) producerBefore(slotTag, tag uint64,
	next func(*Packet) uint64) *Packet {
	t := slotTag
	for t != 0 {
		q := p.packets[t]
		if q == nil {
			return nil
		}
		if t < tag {
			if q.executed {
				return q
			}
			return nil
		}
		t = next(q)
	}
	return nil
}

// Execute runs the packet speculatively: operand values are collected
// from older in-flight producers (falling back to the hart), poked in,
// the hart is single-stepped, the outcome is recorded, and every side
// effect of the step is rolled back.
func (p *PerfApi) Execute(tag uint64) {
	pkt := p.mustPacket(tag, "execute")
	if !pkt.decoded {
		panic(fmt.Sprintf("perfapi: execute before decode for tag %d", tag))
	}
	if pkt.executed {
		panic(fmt.Sprintf("perfapi: execute called twice for tag %d", tag))
	}

	h := p.hart
	group := pkt.vecGroup
	if group == 0 {
		group = p.vecGroup()
	}
	ops := classifyOperands(pkt.Inst, group)

	// Collect operand values from producers.
	intVals := map[int]uint64{}
	for _, r := range ops.ints {
		intVals[r] = h.PeekIntReg(r)
		if q := p.producerBefore(p.prodInt[r], tag,
			func(q *Packet) uint64 { return q.prevInt[r] }); q != nil &&
			q.intDest == r {
			intVals[r] = q.intVal
		}
	}
	fpVals := map[int]uint64{}
	for _, r := range ops.fps {
		fpVals[r] = h.PeekFpReg(r)
		if q := p.producerBefore(p.prodFp[r], tag,
			func(q *Packet) uint64 { return q.prevFp[r] }); q != nil &&
			q.fpDest == r {
			fpVals[r] = q.fpVal
		}
	}
	vecVals := map[int][]byte{}
	for _, r := range ops.vecs {
		vecVals[r] = h.PeekVecReg(r)
		if q := p.producerBefore(p.prodVec[r], tag,
			func(q *Packet) uint64 { return q.prevVec[r] }); q != nil {
			off := (r - q.vecDest) * h.Vlenb()
			if off >= 0 && off+h.Vlenb() <= len(q.vecVal) {
				vecVals[r] = q.vecVal[off : off+h.Vlenb()]
			}
		}
	}
	csrPoked := false
	var csrOperandVal uint64
	if ops.csr >= 0 {
		if q := p.producerBefore(p.prodCsr[uint16(ops.csr)], tag,
			func(q *Packet) uint64 { return q.prevCsr[uint16(ops.csr)] }); q != nil &&
			q.csrDest == ops.csr {
			csrOperandVal = q.csrVal
			csrPoked = true
		}
	}

	// Snapshot everything the step may touch.
	savedInts := map[int]uint64{}
	for _, r := range ops.ints {
		savedInts[r] = h.PeekIntReg(r)
	}
	if pkt.intDest >= 0 {
		savedInts[pkt.intDest] = h.PeekIntReg(pkt.intDest)
	}
	savedFps := map[int]uint64{}
	for _, r := range ops.fps {
		savedFps[r] = h.PeekFpReg(r)
	}
	if pkt.fpDest >= 0 {
		savedFps[pkt.fpDest] = h.PeekFpReg(pkt.fpDest)
	}
	savedVecs := map[int][]byte{}
	for _, r := range ops.vecs {
		savedVecs[r] = h.PeekVecReg(r)
	}
	for g := 0; g < pkt.vecGroup; g++ {
		savedVecs[pkt.vecDest+g] = h.PeekVecReg(pkt.vecDest + g)
	}
	var savedCsr uint64
	if csrPoked {
		savedCsr, _ = h.PeekCsr(uint16(ops.csr))
	}
	savedMstatus, _ := h.PeekCsr(hart.CsrMstatus)
	savedFflags, _ := h.PeekCsr(hart.CsrFflags)
	savedVl, _ := h.PeekCsr(hart.CsrVl)
	savedVtype, _ := h.PeekCsr(hart.CsrVtype)
	savedCycle, _ := h.PeekCsr(hart.CsrMcycle)
	savedInstret, _ := h.PeekCsr(hart.CsrMinstret)
	savedRes := h.Reservation()
	savedPc := h.Pc()
	savedCount := h.InstCount()
	pkt.Priv = h.Priv()
	pkt.Virt = h.Virt()

	// Install the collected operand view.
	for r, v := range intVals {
		h.PokeIntReg(r, v)
	}
	for r, v := range fpVals {
		h.PokeFpReg(r, v)
	}
	for r, v := range vecVals {
		h.PokeVecGroup(r, v)
	}
	if csrPoked {
		h.PokeCsr(uint16(ops.csr), csrOperandVal)
	}
	h.SetPc(pkt.Iva)

	// Make the in-hart instruction count reflect how many in-flight
	// instructions separate this packet from the last retired one.
	older := int64(0)
	for t, q := range p.packets {
		if t < tag && !q.retired {
			older++
		}
	}
	h.SetInstCount(savedCount + uint64(older))
	h.AdjustTime(older)

	p.lastTrap = nil
	p.capturing = pkt
	p.journal = nil
	h.Step()
	p.capturing = nil

	// Record the outcome.
	pkt.NextIva = h.Pc()
	if p.lastTrap != nil {
		pkt.Trap = true
		pkt.TrapIsInt = p.lastTrap.cause&p.intMask() != 0
		pkt.TrapCause = p.lastTrap.cause &^ p.intMask()
	}
	if pkt.intDest >= 0 {
		pkt.intVal = h.PeekIntReg(pkt.intDest)
	}
	if pkt.fpDest >= 0 {
		pkt.fpVal = h.PeekFpReg(pkt.fpDest)
	}
	if pkt.vecDest >= 0 {
		pkt.vecVal = nil
		for g := 0; g < pkt.vecGroup; g++ {
			pkt.vecVal = append(pkt.vecVal, h.PeekVecReg(pkt.vecDest+g)...)
		}
	}
	if pkt.csrDest >= 0 {
		pkt.csrVal, _ = h.PeekCsr(uint16(pkt.csrDest))
	}
	if la := h.LastMemAccess(); la.Valid {
		pkt.DataVa = la.Va
		pkt.DataPa = la.Pa
		pkt.DataSize = la.Size
		if h.Mem().IsMmio(la.Pa) {
			pkt.DeviceSpace = true
		}
	}
	pkt.InstPa = h.LastFetchPa()
	pkt.InstPa2, pkt.InstCrossed = h.LastFetchPa2()
	pkt.FetchWalks = h.LastFetchWalks()
	pkt.DataWalks = h.LastDataWalks()
	pkt.VecAddrs, pkt.VecElemSize = h.LastVecAccesses()
	if pkt.Inst.IsBranch() && !pkt.Trap {
		pkt.Taken = pkt.NextIva != pkt.Iva+pkt.Inst.Size()
	}
	pkt.Mispredicted = pkt.PredNextIva != 0 && pkt.PredNextIva != pkt.NextIva

	// Capture store data from the journal, then roll the memory back.
	for _, u := range p.journal {
		post, ok := h.Mem().ReadBytes(u.pa, uint64(len(u.data)))
		if ok {
			for i, b := range post {
				pkt.stData[u.pa+uint64(i)] = b
			}
		}
	}
	for i := len(p.journal) - 1; i >= 0; i-- {
		h.Mem().WriteBytes(p.journal[i].pa, p.journal[i].data)
	}
	p.journal = nil

	// Undo every CSR the step changed, then the explicit snapshots.
	writes := h.LastCsrWrites()
	for i := len(writes) - 1; i >= 0; i-- {
		h.PokeCsr(writes[i].Addr, writes[i].Prev)
	}
	h.PokeCsr(hart.CsrMstatus, savedMstatus)
	h.PokeCsr(hart.CsrFflags, savedFflags)
	h.PokeCsr(hart.CsrVl, savedVl)
	h.PokeCsr(hart.CsrVtype, savedVtype)
	h.PokeCsr(hart.CsrMcycle, savedCycle)
	h.PokeCsr(hart.CsrMinstret, savedInstret)
	if csrPoked {
		h.PokeCsr(uint16(ops.csr), savedCsr)
	}
	for r, v := range savedInts {
		h.PokeIntReg(r, v)
	}
	for r, v := range savedFps {
		h.PokeFpReg(r, v)
	}
	for r, v := range savedVecs {
		h.PokeVecGroup(r, v)
	}
	h.SetPrivilege(pkt.Priv, pkt.Virt)
	h.SetReservation(savedRes)
	h.SetPc(savedPc)
	h.SetInstCount(savedCount)
	h.AdjustTime(-older)

	pkt.executed = true
}

// GetLoadData services a load at (pa, size): bytes covered by older
// in-flight executed stores are forwarded from the youngest such
// store; the rest come from memory. Device addresses short-circuit to
// the device handler.
func (p *PerfApi) GetLoadData(pa uint64, size int, tag uint64) uint64 {
	if p.hart.Mem().IsMmio(pa) {
		v, _ := p.hart.Mem().Read(pa, size, false)
		return v
	}

	var stores []*Packet
	for t, q := range p.packets {
		if t < tag && q.executed && q.IsStore() {
			stores = append(stores, q)
		}
	}
	sort.Slice(stores, func(i, j int) bool {
		return stores[i].Tag < stores[j].Tag
	})

	var v uint64
	for i := 0; i < size; i++ {
		addr := pa + uint64(i)
		b, _ := p.hart.Mem().Read(addr, 1, false)
		for _, q := range stores {
			if d, ok := q.stData[addr]; ok {
				b = uint64(d)
			}
		}
		v |= (b & 0xFF) << (8 * uint(i))
	}
	return v
}

// SetStoreData overrides bytes of a store packet's pending data.
func (p *PerfApi) SetStoreData(tag, pa uint64, data []byte) {
	pkt := p.mustPacket(tag, "setStoreData")
	for i, b := range data {
		pkt.stData[pa+uint64(i)] = b
	}
}

// Retire replays the packet architecturally and asserts the recorded
// outcome. Store packets stay in flight until DrainStore; everything
// else is deleted.
func (p *PerfApi) Retire(tag uint64) {
	pkt := p.mustPacket(tag, "retire")
	if !pkt.executed {
		panic(fmt.Sprintf("perfapi: retire before execute for tag %d", tag))
	}
	if pkt.retired {
		panic(fmt.Sprintf("perfapi: retire called twice for tag %d", tag))
	}

	h := p.hart
	h.Step()

	if h.Pc() != pkt.NextIva {
		panic(fmt.Sprintf(
			"perfapi: retire tag %d: pc mismatch: hart %#x, packet %#x",
			tag, h.Pc(), pkt.NextIva))
	}
	if pkt.intDest >= 0 && h.PeekIntReg(pkt.intDest) != pkt.intVal {
		panic(fmt.Sprintf(
			"perfapi: retire tag %d: x%d mismatch: hart %#x, packet %#x",
			tag, pkt.intDest, h.PeekIntReg(pkt.intDest), pkt.intVal))
	}
	if pkt.fpDest >= 0 && h.PeekFpReg(pkt.fpDest) != pkt.fpVal {
		panic(fmt.Sprintf(
			"perfapi: retire tag %d: f%d mismatch: hart %#x, packet %#x",
			tag, pkt.fpDest, h.PeekFpReg(pkt.fpDest), pkt.fpVal))
	}
	if pkt.vecDest >= 0 {
		for g := 0; g < pkt.vecGroup; g++ {
			got := h.PeekVecReg(pkt.vecDest + g)
			want := pkt.vecVal[g*h.Vlenb() : (g+1)*h.Vlenb()]
			for i := range got {
				if got[i] != want[i] {
					panic(fmt.Sprintf(
						"perfapi: retire tag %d: v%d byte %d mismatch",
						tag, pkt.vecDest+g, i))
				}
			}
		}
	}

	p.releaseProducers(pkt)
	pkt.retired = true
	if !pkt.IsStore() {
		delete(p.packets, tag)
	}
}

// releaseProducers clears every producer slot still pointing at pkt.
func (p *PerfApi) releaseProducers(pkt *Packet) {
	if pkt.intDest >= 0 && p.prodInt[pkt.intDest] == pkt.Tag {
		p.prodInt[pkt.intDest] = 0
	}
	if pkt.fpDest >= 0 && p.prodFp[pkt.fpDest] == pkt.Tag {
		p.prodFp[pkt.fpDest] = 0
	}
	for g := 0; g < pkt.vecGroup; g++ {
		if p.prodVec[pkt.vecDest+g] == pkt.Tag {
			p.prodVec[pkt.vecDest+g] = 0
		}
	}
	if pkt.csrDest >= 0 && p.prodCsr[uint16(pkt.csrDest)] == pkt.Tag {
		delete(p.prodCsr, uint16(pkt.csrDest))
	}
}

// DrainStore writes a retired store packet's pending bytes to memory
// and deletes the packet. SC drops the reservation.
func (p *PerfApi) DrainStore(tag uint64) {
	pkt := p.mustPacket(tag, "drainStore")
	if !pkt.retired {
		panic(fmt.Sprintf("perfapi: drain before retire for tag %d", tag))
	}
	if !pkt.IsStore() {
		panic(fmt.Sprintf("perfapi: drain of non-store tag %d", tag))
	}

	addrs := make([]uint64, 0, len(pkt.stData))
	for a := range pkt.stData {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, a := range addrs {
		p.hart.Mem().Write(a, 1, uint64(pkt.stData[a]), false)
	}

	if pkt.Inst.Op == insts.OpSCW || pkt.Inst.Op == insts.OpSCD {
		p.hart.ClearReservation()
	}
	delete(p.packets, tag)
}

// Flush deletes the packet with the given tag and every younger one,
// restoring each producer slot the victims claimed to the producer
// captured at their decode. Flushed tags may be reissued.
func (p *PerfApi) Flush(fromTag uint64) {
	var victims []uint64
	for t := range p.packets {
		if t >= fromTag {
			victims = append(victims, t)
		}
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i] > victims[j]
	})

	for _, t := range victims {
		pkt := p.packets[t]
		for r, prev := range pkt.prevInt {
			if p.prodInt[r] == t {
				p.prodInt[r] = prev
			}
		}
		for r, prev := range pkt.prevFp {
			if p.prodFp[r] == t {
				p.prodFp[r] = prev
			}
		}
		for r, prev := range pkt.prevVec {
			if p.prodVec[r] == t {
				p.prodVec[r] = prev
			}
		}
		for c, prev := range pkt.prevCsr {
			if p.prodCsr[c] == t {
				if prev == 0 {
					delete(p.prodCsr, c)
				} else {
					p.prodCsr[c] = prev
				}
			}
		}
		if p.prevFetch == pkt {
			p.prevFetch = nil
		}
		delete(p.packets, t)
	}

	if fromTag > 0 && fromTag-1 < p.lastTag {
		p.lastTag = fromTag - 1
	}
}

// IntProducer returns the tag of the in-flight producer of integer
// register r, or zero.
func (p *PerfApi) IntProducer(r int) uint64 { return p.prodInt[r] }

// FpProducer returns the tag of the in-flight producer of FP register
// r, or zero.
func (p *PerfApi) FpProducer(r int) uint64 { return p.prodFp[r] }

// VecProducer returns the tag of the in-flight producer of vector
// register r, or zero.
func (p *PerfApi) VecProducer(r int) uint64 { return p.prodVec[r] }

// CsrProducer returns the tag of the in-flight producer of the CSR,
// or zero.
func (p *PerfApi) CsrProducer(addr uint16) uint64 { return p.prodCsr[addr] }
