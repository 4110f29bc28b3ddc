package runtime

import (
	"fmt"

	"exprfutures-go/packages/lowering/types"
)

// Index is a position in a sequence, counted from the start or the end
type Index struct {
	Value   int
	FromEnd bool
}

// GetOffset returns the offset of the index in a sequence of length n
func (i Index) GetOffset(n int) int {
	if i.FromEnd {
		return n - i.Value
	}
	return i.Value
}

func (i Index) String() string {
	if i.FromEnd {
		return fmt.Sprintf("^%d", i.Value)
	}
	return fmt.Sprintf("%d", i.Value)
}

// RuntimeType implements Typed
func (i Index) RuntimeType() *types.Type { return IndexType }

// Range is a slice of a sequence between two indices
type Range struct {
	Start Index
	End   Index
}

// GetOffsetAndLength returns the start offset and the number of elements
// of the range in a sequence of length n
func (r Range) GetOffsetAndLength(n int) (int, int, error) {
	start := r.Start.GetOffset(n)
	end := r.End.GetOffset(n)
	if start < 0 || end > n || start > end {
		return 0, 0, NewException(ArgumentExceptionType, fmt.Sprintf("range %s out of bounds for length %d", r, n))
	}
	return start, end - start, nil
}

func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}

// RuntimeType implements Typed
func (r Range) RuntimeType() *types.Type { return RangeType }

// Index and Range types and their members
var (
	IndexType = &types.Type{Name: "Index", Kind: types.KindStruct, Base: types.Object, Sealed: true, Zero: func() any { return Index{} }}
	RangeType = &types.Type{Name: "Range", Kind: types.KindStruct, Base: types.Object, Sealed: true, Zero: func() any { return Range{} }}

	IndexCtor      *types.Constructor
	IndexValue     *types.Property
	IndexIsFromEnd *types.Property
	IndexGetOffset *types.Method
	RangeCtor      *types.Constructor
	RangeStart     *types.Property
	RangeEnd       *types.Property
	RangeStartAt   *types.Method
	RangeEndAt     *types.Method
	RangeAll       *types.Property
)

func init() {
	IndexCtor = IndexType.DefineConstructor([]*types.Parameter{types.Param("value", types.Int), types.Param("fromEnd", types.Bool)}, func(_ any, args []any) (any, error) {
		v := args[0].(int)
		if v < 0 {
			return nil, NewException(ArgumentExceptionType, "index value must be non-negative")
		}
		return Index{Value: v, FromEnd: args[1].(bool)}, nil
	})
	IndexValue = IndexType.DefineProperty("Value", types.Int, func(recv any, _ []any) (any, error) {
		return recv.(Index).Value, nil
	}, nil)
	IndexIsFromEnd = IndexType.DefineProperty("IsFromEnd", types.Bool, func(recv any, _ []any) (any, error) {
		return recv.(Index).FromEnd, nil
	}, nil)
	IndexGetOffset = IndexType.DefineMethod("GetOffset", types.Int, []*types.Parameter{types.Param("length", types.Int)}, func(recv any, args []any) (any, error) {
		return recv.(Index).GetOffset(args[0].(int)), nil
	})

	RangeCtor = RangeType.DefineConstructor([]*types.Parameter{types.Param("start", IndexType), types.Param("end", IndexType)}, func(_ any, args []any) (any, error) {
		return Range{Start: args[0].(Index), End: args[1].(Index)}, nil
	})
	RangeStart = RangeType.DefineProperty("Start", IndexType, func(recv any, _ []any) (any, error) {
		return recv.(Range).Start, nil
	}, nil)
	RangeEnd = RangeType.DefineProperty("End", IndexType, func(recv any, _ []any) (any, error) {
		return recv.(Range).End, nil
	}, nil)
	RangeStartAt = RangeType.DefineStaticMethod("StartAt", RangeType, []*types.Parameter{types.Param("start", IndexType)}, func(_ any, args []any) (any, error) {
		return Range{Start: args[0].(Index), End: Index{FromEnd: true}}, nil
	})
	RangeEndAt = RangeType.DefineStaticMethod("EndAt", RangeType, []*types.Parameter{types.Param("end", IndexType)}, func(_ any, args []any) (any, error) {
		return Range{End: args[0].(Index)}, nil
	})
	RangeAll = RangeType.DefineProperty("All", RangeType, func(any, []any) (any, error) {
		return Range{End: Index{FromEnd: true}}, nil
	}, nil)
	RangeAll.Static = true
	RangeAll.Get.Static = true
}
