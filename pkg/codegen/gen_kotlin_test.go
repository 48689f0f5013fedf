package codegen

import (
	"regexp"
	"strings"
	"testing"

	"github.com/chazu/loom/compiler"
)

func emitKotlin(t *testing.T, opts Options) string {
	t.Helper()
	files, err := KotlinEmitter{}.Emit(buildTestDefs(t), opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("emitted %d files, want 1", len(files))
	}
	if files[0].Name != "Example.gen.kt" {
		t.Errorf("file name = %q, want Example.gen.kt", files[0].Name)
	}
	return string(files[0].Content)
}

func TestKotlinEmitter_Enums(t *testing.T) {
	src := emitKotlin(t, Options{})
	wantContains(t, src,
		"enum class Code(val raw: Int)",
		"ONE(0)",
		"TWO(1)",
		"fun ofRaw(raw: Int): Code?",
	)
}

func TestKotlinEmitter_DataClass(t *testing.T) {
	src := emitKotlin(t, Options{})
	wantContains(t, src,
		"data class MessageData(",
		"val name: String? = null",
		"val code: Code",
		"val data: Map<String, String>",
		"fun fromList(list: List<Any?>): MessageData",
		"fun toList(): List<Any?>",
	)
	// Wire order: name precedes code, code precedes data.
	if strings.Index(src, "val name") > strings.Index(src, "val code") {
		t.Error("field order lost in data class")
	}
}

func TestKotlinEmitter_Apis(t *testing.T) {
	src := emitKotlin(t, Options{})
	wantContains(t, src,
		"class ExampleHostApi(private val messenger: BinaryMessenger)",
		"fun add(a: Long, b: Long, callback: (Result<Long>) -> Unit)",
		"interface MessageClientApi",
		"fun setUp(messenger: BinaryMessenger, api: MessageClientApi?)",
		"class ConsoleRegistrar(",
		"fun setUpInstanceManager(messenger: BinaryMessenger): InstanceManager",
		"CustomType(128",
	)
}

func TestKotlinEmitter_StartupClearsRemoteTable(t *testing.T) {
	src := emitKotlin(t, Options{})
	wantContains(t, src,
		`messenger.send("dev.flutter.pigeon.example.InstanceManager.clear", codec.encodeMessage(listOf<Any?>())) { }`,
	)
}

func TestKotlinEmitter_UnattachedFieldsFollowAnnouncements(t *testing.T) {
	src := emitKotlin(t, Options{})
	// Console declares `String tag`: the property exists on the class and
	// newInstance fills it from the payload after the identifier.
	wantContains(t, src,
		"var tag: String? = null",
		"instance.tag = args[1] as String?",
	)
}

const proxyPairSchema = `package example;

proxy api Inner {
  new();
}

proxy api Outer {
  new();
  attached Inner child;
  void adopt(Inner other);
  Inner pick(Inner? maybe);
  callback void onPick(Inner item);
}
`

func emitKotlinSchema(t *testing.T, schema string) string {
	t.Helper()
	defs, err := compiler.Build("test.loom", schema)
	if err != nil {
		t.Fatal(err)
	}
	files, err := KotlinEmitter{}.Emit(defs, Options{})
	if err != nil {
		t.Fatal(err)
	}
	return string(files[0].Content)
}

// Proxy values cross the wire as identifiers in both directions, matching
// the Go side's int64 handling.
func TestKotlinEmitter_ProxyArgumentsTravelAsIdentifiers(t *testing.T) {
	src := emitKotlinSchema(t, proxyPairSchema)
	wantContains(t, src,
		"listOf(identifier, other.identifier)",
		"maybe?.identifier",
		`(registrar.manager.getInstance(result as Long) as Inner? ?: throw LoomException("unknown Inner identifier"))`,
		`(manager.getInstance(args[1] as Long) as Inner? ?: throw LoomException("unknown Inner identifier"))`,
	)
	if strings.Contains(src, "result as Inner") {
		t.Error("proxy result cast directly instead of resolving its identifier")
	}
}

func TestKotlinEmitter_AttachedAccessorConstructsFieldType(t *testing.T) {
	src := emitKotlinSchema(t, proxyPairSchema)
	wantContains(t, src,
		"fun child(owner: Outer, callback: (Result<Inner>) -> Unit)",
		"val instance = Inner(InnerRegistrar(messenger, manager), manager.allocateIdentifier())",
	)
}

func TestKotlinEmitter_RejectsNestedProxyTypes(t *testing.T) {
	defs, err := compiler.Build("bad.loom", `package example;

proxy api Console {
  new();
  void take(List<Console> consoles);
}
`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := (KotlinEmitter{}).Emit(defs, Options{}); err == nil {
		t.Error("proxy type inside generics emitted without error")
	}
}

// Enums keep their ordinal form through nested containers, the same
// normalization the Go codec applies by reflection.
func TestKotlinEmitter_NestedEnumContainers(t *testing.T) {
	src := emitKotlinSchema(t, `package example;

enum Code {
  one,
  two
}

host api DeepApi {
  void send(Map<String, Code> codes, List<List<Code>> tiers);
}

client api DeepClientApi {
  void receive(Map<String, Code> codes);
}
`)
	wantContains(t, src,
		"codes.entries.associate { it.key to it.value.raw.toLong() }",
		"tiers.map { it.map { it.raw.toLong() } }",
		"(args[0] as Map<Any?, Any?>).entries.associate { it.key as String to Code.ofRaw((it.value as Long).toInt())!! }",
	)
}

func TestKotlinEmitter_RuntimePackage(t *testing.T) {
	src := emitKotlin(t, Options{})
	if !strings.Contains(src, "import dev.loom.runtime.MessageCodec") {
		t.Error("default runtime package import missing")
	}
}

// Both emitters must derive identical channel names and codec tags.
func TestEmitters_AgreeOnContract(t *testing.T) {
	defs := buildTestDefs(t)
	goFiles, err := GoEmitter{}.Emit(defs, Options{})
	if err != nil {
		t.Fatal(err)
	}
	ktFiles, err := KotlinEmitter{}.Emit(defs, Options{})
	if err != nil {
		t.Fatal(err)
	}
	goSrc := string(goFiles[0].Content)
	ktSrc := string(ktFiles[0].Content)

	channelRe := regexp.MustCompile(`"dev\.flutter\.pigeon\.[^"]+"`)
	channels := channelRe.FindAllString(goSrc, -1)
	if len(channels) == 0 {
		t.Fatal("no channels found in go output")
	}
	for _, ch := range channels {
		if !strings.Contains(ktSrc, ch) {
			t.Errorf("kotlin output missing channel %s", ch)
		}
	}
}
