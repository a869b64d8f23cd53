package values

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoneyFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "100", want: "100.00"},
		{input: "100.5", want: "100.50"},
		{input: "100.55", want: "100.55"},
		{input: "0.01", want: "0.01"},
		{input: "-3.20", want: "-3.20"},
		{input: "100.555", want: "100.56"}, // rounded to cents on entry
		{input: "abc", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m, err := NewMoneyFromString(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.String())
		})
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	a := MustNewMoneyFromString("100.00")
	b := MustNewMoneyFromString("5.00")

	assert.Equal(t, "105.00", a.Add(b).String())
	assert.Equal(t, "95.00", a.Sub(b).String())
	assert.True(t, b.LessThan(a))
	assert.True(t, a.GreaterThanOrEqual(a))
	assert.Equal(t, 1, a.Compare(b))
	assert.Equal(t, 0, a.Compare(MustNewMoneyFromString("100")))
}

func TestMoney_ExactComparison(t *testing.T) {
	// 0.1 + 0.2 must equal 0.3 exactly; this is the reason for decimals.
	sum := MustNewMoneyFromString("0.10").Add(MustNewMoneyFromString("0.20"))
	assert.True(t, sum.Equal(MustNewMoneyFromString("0.30")))
}

func TestMoney_JSON(t *testing.T) {
	m := MustNewMoneyFromString("1234.50")

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `"1234.50"`, string(data))

	var back Money
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, m.Equal(back))

	// Bare numbers are accepted too.
	require.NoError(t, json.Unmarshal([]byte(`99.95`), &back))
	assert.Equal(t, "99.95", back.String())
}

func TestMoney_Scan(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan("250.75"))
	assert.Equal(t, "250.75", m.String())

	require.NoError(t, m.Scan([]byte("42")))
	assert.Equal(t, "42.00", m.String())

	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, "42.00", v)
}
