package recorder

import "corecs/internal/errs"

// SeekPlan reports which frames a SeekTo(target) would apply, without
// opening the binary stream or touching any repository: the tick of the
// keyframe it would start from and the ordered ticks of every delta
// applied after it. Useful for `recorder seek --dry-run`-style tooling
// that wants to describe a seek before a host with the right component
// types actually performs it.
func SeekPlan(path string, target uint32) (keyframeTick uint32, deltaTicks []uint32, err error) {
	idx, err := openFrameIndexReadOnly(indexPath(path))
	if err != nil {
		return 0, nil, err
	}
	defer idx.close()

	_, kfTick, found, err := idx.latestKeyframeAtOrBefore(target)
	if err != nil {
		return 0, nil, err
	}
	if !found {
		return 0, nil, errs.New(errs.RecordingCorrupt, "no keyframe at or before the requested tick")
	}

	ticks, err := idx.tickRange(kfTick+1, target)
	if err != nil {
		return 0, nil, err
	}
	return kfTick, ticks, nil
}
