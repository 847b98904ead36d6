package config

import (
	"reflect"
	"testing"
)

func TestParseTFs(t *testing.T) {
	c := &Config{EnabledTFs: "60, 300,bogus,,900,-5"}
	got := c.ParseTFs()
	want := []int{60, 300, 900}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTFs = %v, want %v", got, want)
	}
}

func TestParseSymbols(t *testing.T) {
	c := &Config{Symbols: " NSE:RELIANCE ,,NSE:SBIN"}
	got := c.ParseSymbols()
	want := []string{"NSE:RELIANCE", "NSE:SBIN"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseSymbols = %v, want %v", got, want)
	}
}

func TestParseMAWindows_Unset(t *testing.T) {
	c := &Config{}
	if got := c.ParseMAWindows(); got != nil {
		t.Errorf("expected nil for unset override, got %v", got)
	}
}

func TestParseMAWindows_Override(t *testing.T) {
	c := &Config{MAWindows: "5,10,20"}
	got := c.ParseMAWindows()
	want := []int{5, 10, 20}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseMAWindows = %v, want %v", got, want)
	}
}
