package devdb

import (
	"github.com/neumodvb/devcore/internal/liveness"
	"github.com/neumodvb/devcore/internal/store"
)

func enabledFor(fe FE, ds DeliverySystem) bool {
	switch ds {
	case DeliveryDVBC:
		return fe.EnableDVBC
	case DeliveryDVBT:
		return fe.EnableDVBT
	default:
		return fe.EnableDVBS
	}
}

// isSubLive reports whether fe's subscription record names a still-living
// owner. A dead owner's reservation is treated as unreserved everywhere in
// the arbitrator (spec §5 Cancellation).
func isSubLive(sub Subscription) bool {
	return sub.UseCount > 0 && liveness.Alive(sub.Owner)
}

func sameFEKey(a, b FEKey) bool { return a == b }

// adapterInUse reports whether any frontend sharing fe's adapter_no (a
// multi-frontend card's shared demod, spec §4.D step 1) other than exclude
// currently holds a live subscription.
func adapterInUse(txn store.Txn, fe FE, exclude *FEKey) (bool, error) {
	peers, err := FEsOnAdapter(txn, fe.AdapterNo)
	if err != nil {
		return false, err
	}
	for _, p := range peers {
		if sameFEKey(p.Key, fe.Key) {
			continue
		}
		if exclude != nil && sameFEKey(p.Key, *exclude) {
			continue
		}
		if isSubLive(p.Sub) {
			return true, nil
		}
	}
	return false, nil
}

func spectrumRank(caps Capabilities) int {
	switch {
	case caps&CapSpectrumFFT != 0:
		return 2
	case caps&CapSpectrumSweep != 0:
		return 1
	default:
		return 0
	}
}

// isBetterForDVBCOrDVBT implements the tie-break rules of spec §4.D step 3:
// when a spectrum acquisition is wanted, more capable hardware wins; when
// it is not, frontends *without* spectrum hardware are preferred so that
// scarce spectrum-capable tuners stay free for spectrum work. Either way,
// higher configured priority breaks remaining ties.
func isBetterForDVBCOrDVBT(a, b FE, needSpectrum bool) bool {
	ra, rb := spectrumRank(a.Caps), spectrumRank(b.Caps)
	if ra != rb {
		if needSpectrum {
			return ra > rb
		}
		return ra < rb
	}
	return a.Priority > b.Priority
}

// FindBestFEForDVBCOrDVBT selects the best free cable/terrestrial frontend
// for the requested capability set (spec §4.D). feToRelease, if non-nil,
// names a frontend the caller is about to release — it is treated as
// already free.
func FindBestFEForDVBCOrDVBT(txn store.Txn, feToRelease *FEKey, needBlindscan, needSpectrum, needMultistream bool, delsys DeliverySystem) (FE, bool, error) {
	all, err := AllFEs(txn)
	if err != nil {
		return FE{}, false, err
	}

	var best FE
	haveBest := false
	for _, fe := range all {
		isRelease := feToRelease != nil && sameFEKey(fe.Key, *feToRelease)

		if !fe.Usable() || !enabledFor(fe, delsys) || !fe.Supports(delsys) {
			continue
		}
		if isSubLive(fe.Sub) && !isRelease {
			continue
		}
		busy, err := adapterInUse(txn, fe, feToRelease)
		if err != nil {
			return FE{}, false, err
		}
		if busy {
			continue
		}
		if needBlindscan && fe.Caps&CapBlindscan == 0 {
			continue
		}
		if needMultistream && fe.Caps&CapMultistream == 0 {
			continue
		}
		if needSpectrum && fe.Caps&(CapSpectrumFFT|CapSpectrumSweep) == 0 {
			continue
		}

		if !haveBest || isBetterForDVBCOrDVBT(fe, best, needSpectrum) {
			best, haveBest = fe, true
		}
	}
	return best, haveBest, nil
}
