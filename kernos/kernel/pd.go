package kernel

import (
	"fmt"
	"sort"
)

// Pd is a protection domain. Threads join one when started; capabilities
// are accounted to one. The core domain is created by the kernel and is the
// only one allowed to manage objects.
type Pd struct {
	object

	core    bool
	threads int
}

func (p *Pd) Core() bool { return p.core }

func (k *Kernel) newPd(a PdArgs) (*Pd, error) {
	h, p, err := k.pds.Reserve()
	if err != nil {
		return nil, err
	}
	p.object = object{kind: KindPd, handle: h, label: a.Label}
	if err := k.pds.Publish(h); err != nil {
		k.pds.Unreserve(h)
		return nil, err
	}
	return p, nil
}

// teardown order: nothing may point at an object destroyed before it.
var teardownOrder = map[Kind]int{
	KindThread:         0,
	KindVm:             1,
	KindIrq:            2,
	KindSignalContext:  3,
	KindSignalReceiver: 4,
	KindPd:             5,
}

// destroyPd destroys the threads of p and every object accounted to it.
func (k *Kernel) destroyPd(p *Pd) error {
	if p.core {
		return fmt.Errorf("destroy core pd: %w", ErrDenied)
	}
	var victims []ObjectRef
	k.threads.Each(func(t *Thread) {
		if t.pd == p {
			victims = append(victims, t.ref())
		}
	})
	victims = append(victims, k.caps.RevokeOwned(p)...)
	sort.SliceStable(victims, func(i, j int) bool {
		return teardownOrder[victims[i].Kind] < teardownOrder[victims[j].Kind]
	})
	for _, ref := range victims {
		if ref == p.ref() {
			continue
		}
		if err := k.destroyRef(ref); err != nil {
			k.log.Debug("pd teardown", "pd", p.name(), "object", ref.Kind, "err", err)
		}
	}
	return nil
}
