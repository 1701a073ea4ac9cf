package hart

import "github.com/sarchlab/r5sim/mem"

// Host backdoor accessors. Pokes bypass the architectural side effects
// a normal register write would have (no dirty tracking, no rollback
// journal) so a host can install state between instructions without
// perturbing what the next Step observes.

// PeekIntReg reads integer register i.
func (h *Hart) PeekIntReg(i int) uint64 { return h.x[i] }

// PokeIntReg writes integer register i. Writes to x0 are dropped.
func (h *Hart) PokeIntReg(i int, v uint64) {
	if i == 0 {
		return
	}
	h.x[i] = v & h.xlenMask
}

// PeekFpReg reads the raw bits of FP register i.
func (h *Hart) PeekFpReg(i int) uint64 { return h.f[i] }

// PokeFpReg writes the raw bits of FP register i.
func (h *Hart) PokeFpReg(i int, v uint64) { h.f[i] = v }

// PeekVecReg returns a copy of vector register i.
func (h *Hart) PeekVecReg(i int) []byte { return h.VecReg(i) }

// PokeVecGroup overwrites a run of vector registers starting at i with
// the given bytes. Data longer than one register spills into the
// following registers, which is how grouped (LMUL>1) state is
// installed.
func (h *Hart) PokeVecGroup(i int, data []byte) {
	copy(h.v[i*h.vlenb:], data)
}

// SetInstCount overwrites the executed-instruction counter used for
// icount triggers and host stepping budgets.
func (h *Hart) SetInstCount(n uint64) { h.instCount = n }

// SetReservation restores a previously captured LR/SC reservation.
func (h *Hart) SetReservation(r Reservation) { h.res = r }

// SetPrivilege forces the privilege level and virtualization mode and
// refreshes the cached translation configuration.
func (h *Hart) SetPrivilege(priv mem.Priv, virt bool) {
	h.priv = priv
	h.virt = virt
	h.updateTranslation()
}
