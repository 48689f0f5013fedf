package codegen

import "testing"

func TestChannelName(t *testing.T) {
	got := ChannelName("example", "ExampleHostApi", "add")
	want := "dev.flutter.pigeon.example.ExampleHostApi.add"
	if got != want {
		t.Errorf("ChannelName = %q, want %q", got, want)
	}
}

func TestCasingHelpers(t *testing.T) {
	tests := []struct {
		fn   func(string) string
		in   string
		want string
	}{
		{UpperFirst, "sendMessage", "SendMessage"},
		{UpperFirst, "", ""},
		{LowerFirst, "MessageData", "messageData"},
		{SnakeCase, "ExampleHostApi", "example_host_api"},
		{SnakeCase, "example", "example"},
		{ConstantCase, "oneHour", "ONE_HOUR"},
		{ConstantCase, "two", "TWO"},
	}
	for _, tt := range tests {
		if got := tt.fn(tt.in); got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.in, got, tt.want)
		}
	}
}
