package attribute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDefs() []Definition {
	return []Definition{
		{Name: "priority", Type: TypeInt32, Access: ReadWrite, Default: Value{Type: TypeInt32, I32: 0}},
		{Name: "label", Type: TypeString, Access: Read, Default: Value{Type: TypeString, Str: "default"}},
		{Name: "secret", Type: TypeUint32, Access: Write, Default: Value{Type: TypeUint32, U32: 7}},
	}
}

func TestCopyDefinitions_Independent(t *testing.T) {
	src := sampleDefs()
	dst := CopyDefinitions(src)
	dst[0].Name = "mutated"
	assert.Equal(t, "priority", src[0].Name)
}

func TestGetValue_DeniedReadReturnsZero(t *testing.T) {
	defs := sampleDefs()
	values := []Value{
		{Type: TypeInt32, I32: 5},
		{Type: TypeString, Str: "hello"},
		{Type: TypeUint32, U32: 99},
	}

	v := GetValue(2, defs, values)
	assert.Equal(t, Value{Type: TypeUint32}, v)
}

func TestGetValue_AllowedReadReturnsStored(t *testing.T) {
	defs := sampleDefs()
	values := []Value{
		{Type: TypeInt32, I32: 5},
		{Type: TypeString, Str: "hello"},
		{Type: TypeUint32, U32: 99},
	}

	v := GetValue(0, defs, values)
	assert.Equal(t, int32(5), v.I32)
}

func TestGetValue_OutOfRange(t *testing.T) {
	defs := sampleDefs()
	values := make([]Value, len(defs))
	v := GetValue(99, defs, values)
	assert.Equal(t, Value{}, v)
}

func TestGetAllValues_MasksDeniedFields(t *testing.T) {
	defs := sampleDefs()
	values := []Value{
		{Type: TypeInt32, I32: 5},
		{Type: TypeString, Str: "hello"},
		{Type: TypeUint32, U32: 99},
	}

	all := GetAllValues(defs, values, nil)
	require.Len(t, all, 3)
	assert.Equal(t, int32(5), all[0].I32)
	assert.Equal(t, "hello", all[1].Str)
	assert.Equal(t, Value{Type: TypeUint32}, all[2]) // write-only, denied read
}

func TestSetValues_WritableMatchingTypeWins(t *testing.T) {
	defs := sampleDefs()
	inputs := []Input{
		{Name: "priority", Value: Value{Type: TypeInt32, I32: 3}},
		{Name: "secret", Value: Value{Type: TypeUint32, U32: 42}},
	}

	values := SetValues(inputs, defs, nil)
	assert.Equal(t, int32(3), values[0].I32)
	assert.Equal(t, uint32(42), values[2].U32)
}

func TestSetValues_TypeMismatchFallsBackToDefault(t *testing.T) {
	defs := sampleDefs()
	inputs := []Input{
		{Name: "priority", Value: Value{Type: TypeString, Str: "nope"}},
	}

	values := SetValues(inputs, defs, nil)
	assert.Equal(t, int32(0), values[0].I32)
}

func TestSetValues_ReadOnlyAttributeIgnoresInput(t *testing.T) {
	defs := sampleDefs()
	inputs := []Input{
		{Name: "label", Value: Value{Type: TypeString, Str: "attempted"}},
	}

	values := SetValues(inputs, defs, nil)
	assert.Equal(t, "default", values[1].Str)
}

func TestValidateDefault_TypeMismatchRejected(t *testing.T) {
	def := Definition{Name: "bad", Type: TypeInt32, Default: Value{Type: TypeString}}
	err := ValidateDefault(def)
	require.Error(t, err)
}

func TestIndexOf(t *testing.T) {
	defs := sampleDefs()
	assert.Equal(t, 1, IndexOf(defs, "label"))
	assert.Equal(t, -1, IndexOf(defs, "missing"))
}
