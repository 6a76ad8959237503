package protoexport

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

const (
	maxNumber     = 31767
	reservedStart = 19000
	reservedEnd   = 19999
)

func allocateFieldNumbers(fieldBuilders []*protobuilder.FieldBuilder) error {
	names := make([]string, len(fieldBuilders))
	for i, fb := range fieldBuilders {
		names[i] = string(fb.Name())
	}
	numbers, err := hashNumbers(names)
	if err != nil {
		return err
	}
	for i, fb := range fieldBuilders {
		fb.SetNumber(protoreflect.FieldNumber(numbers[i]))
	}
	return nil
}

func allocateEnumValueNumbers(valueBuilders []*protobuilder.EnumValueBuilder) error {
	names := make([]string, len(valueBuilders))
	for i, evb := range valueBuilders {
		names[i] = string(evb.Name())
	}
	numbers, err := hashNumbers(names)
	if err != nil {
		return err
	}
	for i, evb := range valueBuilders {
		evb.SetNumber(protoreflect.EnumNumber(numbers[i]))
	}
	return nil
}

// hashNumbers assigns tag numbers that stay stable when fields are added or
// reordered. A name starts at FNV32a(name)%31767+1 and probes linearly past
// collisions and the reserved 19000-19999 block. Names are visited in sorted
// order so collisions resolve the same way every time.
func hashNumbers(names []string) ([]int, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if len(names) > maxNumber-(reservedEnd-reservedStart+1) {
		return nil, fmt.Errorf("%d names exceed the tag space", len(names))
	}
	order := make([]int, len(names))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return names[order[i]] < names[order[j]] })

	out := make([]int, len(names))
	used := make(map[int]struct{}, len(names))
	for _, idx := range order {
		cand := int(fnv32(names[idx])%maxNumber) + 1
		for {
			if cand >= reservedStart && cand <= reservedEnd {
				cand = reservedEnd + 1
			}
			if _, ok := used[cand]; !ok {
				break
			}
			cand++
			if cand > maxNumber {
				cand = 1
			}
		}
		used[cand] = struct{}{}
		out[idx] = cand
	}
	return out, nil
}

func fnv32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
