package codegen

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/chazu/loom/compiler"
)

// KotlinEmitter emits the Kotlin binding over the dev.loom.runtime
// support library. The output mirrors the Go binding structurally:
// enums carry their wire ordinal, data classes expose toList/fromList in
// field order, and every api gets a codec with the same tag assignment
// and the same channel strings as the Go side.
type KotlinEmitter struct {
	// RuntimePackage overrides the support library package. Empty means
	// dev.loom.runtime.
	RuntimePackage string
}

func (KotlinEmitter) Language() string { return "kotlin" }

func (e KotlinEmitter) Emit(defs *compiler.Definitions, opts Options) ([]File, error) {
	pkg := opts.PackageName
	if pkg == "" {
		pkg = defs.PackageName
	}
	runtime := e.RuntimePackage
	if runtime == "" {
		runtime = "dev.loom.runtime"
	}

	model, err := buildKotlinModel(defs, pkg, runtime, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := kotlinTemplate.Execute(&buf, model); err != nil {
		return nil, fmt.Errorf("codegen: render kotlin: %w", err)
	}
	return []File{{Name: UpperFirst(defs.PackageName) + ".gen.kt", Content: buf.Bytes()}}, nil
}

// ---

type kotlinModel struct {
	Package string
	Runtime string
	Header  []string
	Enums   []kotlinEnum
	Classes []kotlinClass
	Apis    []kotlinApi
	Proxies bool

	RemoveChannel string
	ClearChannel  string
}

type kotlinEnum struct {
	Name    string
	Doc     []string
	Members []kotlinEnumMember
}

type kotlinEnumMember struct {
	Name    string
	Ordinal int
	Last    bool
}

type kotlinClass struct {
	Name   string
	Doc    []string
	Fields []kotlinField
}

type kotlinField struct {
	Name     string
	Type     string
	Nullable bool
	FromWire string // expression over "list[i]"
	ToWire   string // expression over the property
	Last     bool
}

type kotlinApi struct {
	Name    string
	Doc     []string
	Kind    string // "host", "client", "proxy"
	Codec   []kotlinTagged
	Methods []kotlinMethod

	Constructors []kotlinMethod
	Attached     []kotlinAttached
	Unattached   []kotlinProperty
	NewInstance  string // channel, proxy apis only
}

type kotlinAttached struct {
	Name     string
	Channel  string
	Type     string
	TypeBase string // non-nullable base, names the class to construct
	Static   bool
}

// kotlinProperty is an unattached proxy field, carried by newInstance
// announcements.
type kotlinProperty struct {
	Name     string
	Type     string // always nullable, unset until announced
	FromWire string
}

type kotlinTagged struct {
	Tag   int
	Class string
}

type kotlinMethod struct {
	Name         string
	Channel      string
	Doc          []string
	Params       []kotlinParam
	Return       string // Kotlin type, "" for Unit
	Nullable     bool
	FromWire     string // result conversion over "result"
	ReturnToWire string // callback result conversion over "result"
	IsStatic     bool
	IsCall       bool // outbound from Kotlin (host api methods, proxy non-callback)
	HasParams    bool
}

type kotlinParam struct {
	Name     string
	Type     string
	ToWire   string
	FromWire string // expression over the decoded argument list
	Last     bool
}

func buildKotlinModel(defs *compiler.Definitions, pkg, runtime string, opts Options) (*kotlinModel, error) {
	m := &kotlinModel{
		Package:       pkg,
		Runtime:       runtime,
		Header:        opts.CopyrightHeader,
		RemoveChannel: ChannelName(defs.PackageName, InstanceManagerAPIName, "removeStrongReference"),
		ClearChannel:  ChannelName(defs.PackageName, InstanceManagerAPIName, "clear"),
	}

	for _, e := range defs.Enums {
		ke := kotlinEnum{Name: e.Name, Doc: e.Doc}
		for i, mem := range e.Members {
			ke.Members = append(ke.Members, kotlinEnumMember{
				Name:    ConstantCase(mem.Name),
				Ordinal: i,
				Last:    i == len(e.Members)-1,
			})
		}
		m.Enums = append(m.Enums, ke)
	}

	for _, c := range defs.Classes {
		kc := kotlinClass{Name: c.Name, Doc: c.Doc}
		for i := range c.Fields {
			fld := &c.Fields[i]
			kc.Fields = append(kc.Fields, kotlinField{
				Name:     fld.Name,
				Type:     kotlinTypeOf(&fld.Type),
				Nullable: fld.Type.Nullable,
				FromWire: kotlinFromWire(fmt.Sprintf("list[%d]", i), &fld.Type, ""),
				ToWire:   kotlinToWire(fld.Name, &fld.Type),
				Last:     i == len(c.Fields)-1,
			})
		}
		m.Classes = append(m.Classes, kc)
	}

	for _, api := range defs.Apis {
		enumerated, err := compiler.EnumeratedClassesForApi(api, defs)
		if err != nil {
			return nil, err
		}
		ka := kotlinApi{Name: api.Name, Doc: api.Doc, Kind: api.Kind.String()}
		for _, ec := range enumerated {
			ka.Codec = append(ka.Codec, kotlinTagged{Tag: ec.Tag, Class: ec.Name})
		}

		for _, mth := range api.Methods {
			km := kotlinMethod{
				Name:     mth.Name,
				Channel:  ChannelName(defs.PackageName, api.Name, mth.Name),
				Doc:      mth.Doc,
				IsStatic: mth.IsStatic,
				Nullable: mth.ReturnType.Nullable,
			}
			// Inbound handlers read their arguments from the decoded
			// list; proxy callbacks carry the instance identifier first.
			// Handler bodies run in registrar scope, where the instance
			// table is the manager property; the proxy caller class
			// reaches it through its registrar.
			argOffset := 0
			if api.Kind == compiler.ApiProxy {
				argOffset = 1
			}
			for i := range mth.Parameters {
				p := &mth.Parameters[i]
				if err := rejectNestedProxy(&p.Type); err != nil {
					return nil, err
				}
				km.Params = append(km.Params, kotlinParam{
					Name:     p.Name,
					Type:     kotlinTypeOf(&p.Type),
					ToWire:   kotlinToWire(p.Name, &p.Type),
					FromWire: kotlinFromWire(fmt.Sprintf("args[%d]", argOffset+i), &p.Type, "manager"),
					Last:     i == len(mth.Parameters)-1,
				})
			}
			km.HasParams = len(km.Params) > 0
			if !mth.ReturnType.IsVoid() {
				if err := rejectNestedProxy(&mth.ReturnType); err != nil {
					return nil, err
				}
				km.Return = kotlinTypeOf(&mth.ReturnType)
				km.FromWire = kotlinFromWire("result", &mth.ReturnType, "registrar.manager")
				km.ReturnToWire = kotlinToWire("result", &mth.ReturnType)
			}
			// Host api methods and proxy non-callback methods run on the
			// Go side, so Kotlin is the caller for them.
			switch api.Kind {
			case compiler.ApiHost:
				km.IsCall = true
			case compiler.ApiProxy:
				km.IsCall = !mth.IsCallback
			}
			ka.Methods = append(ka.Methods, km)
		}

		if api.Kind == compiler.ApiProxy {
			m.Proxies = true
			ka.NewInstance = ChannelName(defs.PackageName, api.Name, "newInstance")
			for _, ctor := range api.Constructors {
				name := ctor.Name
				if name == "" {
					name = "new"
				}
				kc := kotlinMethod{
					Name:    name,
					Channel: ChannelName(defs.PackageName, api.Name, name),
					Doc:     ctor.Doc,
					IsCall:  true,
				}
				for i := range ctor.Parameters {
					p := &ctor.Parameters[i]
					if err := rejectNestedProxy(&p.Type); err != nil {
						return nil, err
					}
					kc.Params = append(kc.Params, kotlinParam{
						Name:   p.Name,
						Type:   kotlinTypeOf(&p.Type),
						ToWire: kotlinToWire(p.Name, &p.Type),
						Last:   i == len(ctor.Parameters)-1,
					})
				}
				kc.HasParams = len(kc.Params) > 0
				ka.Constructors = append(ka.Constructors, kc)
			}
			for i := range api.Fields {
				fld := &api.Fields[i]
				if !fld.Attached {
					// Unattached fields arrive with the newInstance
					// announcement, after the identifier.
					nullable := fld.Type
					nullable.Nullable = true
					ka.Unattached = append(ka.Unattached, kotlinProperty{
						Name:     fld.Name,
						Type:     kotlinTypeOf(&nullable),
						FromWire: kotlinFromWire(fmt.Sprintf("args[%d]", len(ka.Unattached)+1), &nullable, "manager"),
					})
					continue
				}
				ka.Attached = append(ka.Attached, kotlinAttached{
					Name:     fld.Name,
					Channel:  ChannelName(defs.PackageName, api.Name, fld.Name),
					Type:     kotlinTypeOf(&fld.Type),
					TypeBase: fld.Type.BaseName,
					Static:   fld.Static,
				})
			}
		}

		m.Apis = append(m.Apis, ka)
	}
	return m, nil
}

// kotlinTypeOf maps a schema type to its Kotlin declaration type.
func kotlinTypeOf(t *compiler.TypeDeclaration) string {
	base := ""
	switch {
	case t.Enum != nil, t.Class != nil:
		base = t.BaseName
	case t.Proxy != nil:
		base = t.BaseName
	default:
		switch t.BaseName {
		case compiler.TypeBool:
			base = "Boolean"
		case compiler.TypeInt:
			base = "Long"
		case compiler.TypeDouble:
			base = "Double"
		case compiler.TypeString:
			base = "String"
		case compiler.TypeUint8List:
			base = "ByteArray"
		case compiler.TypeObject:
			return "Any?"
		case compiler.TypeList:
			if len(t.TypeArguments) == 0 {
				base = "List<Any?>"
			} else {
				base = "List<" + kotlinTypeOf(&t.TypeArguments[0]) + ">"
			}
		case compiler.TypeMap:
			if len(t.TypeArguments) != 2 {
				base = "Map<Any, Any?>"
			} else {
				key := t.TypeArguments[0]
				key.Nullable = false
				base = "Map<" + kotlinTypeOf(&key) + ", " + kotlinTypeOf(&t.TypeArguments[1]) + ">"
			}
		default:
			base = t.BaseName
		}
	}
	if t.Nullable {
		return base + "?"
	}
	return base
}

// kotlinWireConvertible reports whether values of t differ from their
// wire form: enums travel as ordinals, proxies as identifiers, and
// containers inherit the answer from their arguments.
func kotlinWireConvertible(t *compiler.TypeDeclaration) bool {
	if t.Enum != nil || t.Proxy != nil {
		return true
	}
	for i := range t.TypeArguments {
		if kotlinWireConvertible(&t.TypeArguments[i]) {
			return true
		}
	}
	return false
}

// kotlinToWire converts a Kotlin expression to its wire value. Enums
// travel as their ordinal, proxies as their identifier, containers
// element by element; everything else passes through the codec
// untouched.
func kotlinToWire(expr string, t *compiler.TypeDeclaration) string {
	ns := kotlinNullSafe(t)
	switch {
	case t.Enum != nil:
		if t.Nullable {
			return expr + "?.raw?.toLong()"
		}
		return expr + ".raw.toLong()"
	case t.Proxy != nil:
		return expr + ns + ".identifier"
	case t.BaseName == compiler.TypeList && len(t.TypeArguments) == 1 && kotlinWireConvertible(&t.TypeArguments[0]):
		return expr + ns + ".map { " + kotlinToWire("it", &t.TypeArguments[0]) + " }"
	case t.BaseName == compiler.TypeMap && len(t.TypeArguments) == 2 && (kotlinWireConvertible(&t.TypeArguments[0]) || kotlinWireConvertible(&t.TypeArguments[1])):
		key := t.TypeArguments[0]
		key.Nullable = false
		return expr + ns + ".entries" + ns + ".associate { " +
			kotlinToWire("it.key", &key) + " to " + kotlinToWire("it.value", &t.TypeArguments[1]) + " }"
	}
	return expr
}

func kotlinNullSafe(t *compiler.TypeDeclaration) string {
	if t.Nullable {
		return "?"
	}
	return ""
}

// kotlinFromWire converts a decoded wire expression to its Kotlin type.
// manager names the InstanceManager expression in scope, needed to
// resolve proxy identifiers back into tracked instances.
func kotlinFromWire(expr string, t *compiler.TypeDeclaration, manager string) string {
	suffix := ""
	if t.Nullable {
		suffix = "?"
	}
	if t.Enum != nil {
		if t.Nullable {
			return "(" + expr + " as Long?)?.let { " + t.BaseName + ".ofRaw(it.toInt())!! }"
		}
		return t.BaseName + ".ofRaw((" + expr + " as Long).toInt())!!"
	}
	if t.Proxy != nil {
		// Proxies travel as identifiers and resolve through the
		// instance table, never by casting the wire value.
		resolve := func(id string) string {
			return manager + ".getInstance(" + id + ") as " + t.BaseName +
				"? ?: throw LoomException(\"unknown " + t.BaseName + " identifier\")"
		}
		if t.Nullable {
			return "(" + expr + " as Long?)?.let { " + resolve("it") + " }"
		}
		return "(" + resolve(expr+" as Long") + ")"
	}
	if t.Class != nil {
		return expr + " as " + t.BaseName + suffix
	}
	switch t.BaseName {
	case compiler.TypeBool:
		return expr + " as Boolean" + suffix
	case compiler.TypeInt:
		return expr + " as Long" + suffix
	case compiler.TypeDouble:
		return expr + " as Double" + suffix
	case compiler.TypeString:
		return expr + " as String" + suffix
	case compiler.TypeUint8List:
		return expr + " as ByteArray" + suffix
	case compiler.TypeObject:
		return expr
	case compiler.TypeList:
		if len(t.TypeArguments) == 1 && kotlinWireConvertible(&t.TypeArguments[0]) {
			inner := kotlinFromWire("it", &t.TypeArguments[0], manager)
			return "(" + expr + " as List<Any?>" + suffix + ")" + suffix + ".map { " + inner + " }"
		}
		return expr + " as " + kotlinTypeOf(t)
	case compiler.TypeMap:
		if len(t.TypeArguments) == 2 && (kotlinWireConvertible(&t.TypeArguments[0]) || kotlinWireConvertible(&t.TypeArguments[1])) {
			key := t.TypeArguments[0]
			key.Nullable = false
			return "(" + expr + " as Map<Any?, Any?>" + suffix + ")" + suffix + ".entries" + suffix + ".associate { " +
				kotlinFromWire("it.key", &key, manager) + " to " + kotlinFromWire("it.value", &t.TypeArguments[1], manager) + " }"
		}
		return expr + " as " + kotlinTypeOf(t)
	}
	return expr
}

var kotlinTemplate = template.Must(template.New("kotlin").Funcs(template.FuncMap{
	"upperFirst": UpperFirst,
	"join": func(params []kotlinParam) string {
		parts := make([]string, len(params))
		for i, p := range params {
			parts[i] = p.Name + ": " + p.Type
		}
		return strings.Join(parts, ", ")
	},
	"wireArgs": func(params []kotlinParam) string {
		parts := make([]string, len(params))
		for i, p := range params {
			parts[i] = p.ToWire
		}
		return strings.Join(parts, ", ")
	},
}).Parse(`{{- range .Header}}// {{.}}
{{end -}}
// Code generated by loom. DO NOT EDIT.
@file:Suppress("UNCHECKED_CAST")

package {{.Package}}

import {{.Runtime}}.BinaryMessenger
import {{.Runtime}}.CustomType
import {{.Runtime}}.InstanceManager
import {{.Runtime}}.LoomException
import {{.Runtime}}.MessageCodec
{{range .Enums}}
{{range .Doc}}// {{.}}
{{end -}}
enum class {{.Name}}(val raw: Int) {
{{- range .Members}}
  {{.Name}}({{.Ordinal}}){{if .Last}};{{else}},{{end}}
{{- end}}

  companion object {
    fun ofRaw(raw: Int): {{.Name}}? {
      return values().firstOrNull { it.raw == raw }
    }
  }
}
{{end}}
{{- range .Classes}}
{{range .Doc}}// {{.}}
{{end -}}
data class {{.Name}}(
{{- range .Fields}}
  val {{.Name}}: {{.Type}}{{if .Nullable}} = null{{end}}{{if not .Last}},{{end}}
{{- end}}
) {
  companion object {
    fun fromList(list: List<Any?>): {{.Name}} {
      return {{.Name}}(
{{- range .Fields}}
        {{.FromWire}}{{if not .Last}},{{end}}
{{- end}}
      )
    }
  }

  fun toList(): List<Any?> {
    return listOf(
{{- range .Fields}}
      {{.ToWire}}{{if not .Last}},{{end}}
{{- end}}
    )
  }
}
{{end}}
{{- range .Apis}}
{{- $api := .}}
private fun {{.Name}}Codec(): MessageCodec {
  return MessageCodec(listOf(
{{- range .Codec}}
    CustomType({{.Tag}}, { value -> (value as? {{.Class}})?.toList() }, { fields -> {{.Class}}.fromList(fields) }),
{{- end}}
  ))
}
{{if eq .Kind "host"}}
{{range .Doc}}// {{.}}
{{end -}}
class {{.Name}}(private val messenger: BinaryMessenger) {
  private val codec = {{.Name}}Codec()
{{range .Methods}}
{{- range .Doc}}  // {{.}}
{{end}}  fun {{.Name}}({{join .Params}}{{if .HasParams}}, {{end}}callback: (Result<{{if .Return}}{{.Return}}{{else}}Unit{{end}}>) -> Unit) {
    val channel = "{{.Channel}}"
    messenger.send(channel, codec.encodeMessage(listOf({{wireArgs .Params}}))) { reply ->
      codec.decodeReply(channel, reply, {{if .Return}}true{{else}}false{{end}}, {{.Nullable}}).fold(
        onSuccess = { {{if .Return}}result -> callback(Result.success({{.FromWire}})){{else}}callback(Result.success(Unit)){{end}} },
        onFailure = { callback(Result.failure(it)) }
      )
    }
  }
{{end -}}
}
{{end}}
{{- if eq .Kind "client"}}
{{range .Doc}}// {{.}}
{{end -}}
interface {{.Name}} {
{{- range .Methods}}
{{- range .Doc}}
  // {{.}}
{{- end}}
  fun {{.Name}}({{join .Params}}){{if .Return}}: {{.Return}}{{end}}
{{- end}}

  companion object {
    fun setUp(messenger: BinaryMessenger, api: {{.Name}}?) {
      val codec = {{$api.Name}}Codec()
{{- range .Methods}}
      run {
        val channel = "{{.Channel}}"
        if (api == null) {
          messenger.setHandler(channel, null)
        } else {
          messenger.setHandler(channel) { message ->
            val args = codec.decodeArguments(channel, message)
            codec.handle(channel) {
              {{if .Return}}api.{{.Name}}({{range $i, $p := .Params}}{{if $i}}, {{end}}{{$p.FromWire}}{{end}}){{else}}api.{{.Name}}({{range $i, $p := .Params}}{{if $i}}, {{end}}{{$p.FromWire}}{{end}})
              null{{end}}
            }
          }
        }
      }
{{- end}}
    }
  }
}
{{end}}
{{- if eq .Kind "proxy"}}
{{range .Doc}}// {{.}}
{{end -}}
open class {{.Name}} internal constructor(
  private val registrar: {{.Name}}Registrar,
  internal val identifier: Long,
) {
{{- range .Unattached}}
  // Carried by the newInstance announcement; stays null on locally
  // constructed instances.
  var {{.Name}}: {{.Type}} = null
    internal set
{{- end}}
{{- range .Methods}}
{{- if .IsCall}}
  fun {{.Name}}({{join .Params}}{{if .HasParams}}, {{end}}callback: (Result<{{if .Return}}{{.Return}}{{else}}Unit{{end}}>) -> Unit) {
    val channel = "{{.Channel}}"
    registrar.messenger.send(channel, registrar.codec.encodeMessage(listOf(identifier{{if .HasParams}}, {{wireArgs .Params}}{{end}}))) { reply ->
      registrar.codec.decodeReply(channel, reply, {{if .Return}}true{{else}}false{{end}}, {{.Nullable}}).fold(
        onSuccess = { {{if .Return}}result -> callback(Result.success({{.FromWire}})){{else}}callback(Result.success(Unit)){{end}} },
        onFailure = { callback(Result.failure(it)) }
      )
    }
  }
{{- end}}
{{- end}}
}

// Drives the client side of the {{.Name}} proxy: construction, callback
// dispatch, and instance bookkeeping.
class {{.Name}}Registrar(
  internal val messenger: BinaryMessenger,
  internal val manager: InstanceManager,
) {
  internal val codec = {{.Name}}Codec()
{{range .Constructors}}
  fun {{.Name}}{{if eq .Name "new"}}Instance{{end}}({{join .Params}}{{if .HasParams}}, {{end}}callback: (Result<{{$api.Name}}>) -> Unit) {
    val channel = "{{.Channel}}"
    val instance = {{$api.Name}}(this, manager.allocateIdentifier())
    manager.addLocalInstance(instance, instance.identifier)
    messenger.send(channel, codec.encodeMessage(listOf(instance.identifier{{if .HasParams}}, {{wireArgs .Params}}{{end}}))) { reply ->
      codec.decodeReply(channel, reply, false, false).fold(
        onSuccess = { callback(Result.success(instance)) },
        onFailure = { callback(Result.failure(it)) }
      )
    }
  }
{{end}}
{{- range .Attached}}
  fun {{.Name}}({{if not .Static}}owner: {{$api.Name}}, {{end}}callback: (Result<{{.Type}}>) -> Unit) {
    val channel = "{{.Channel}}"
    val instance = {{.TypeBase}}({{.TypeBase}}Registrar(messenger, manager), manager.allocateIdentifier())
    manager.addLocalInstance(instance, instance.identifier)
    messenger.send(channel, codec.encodeMessage(listOf(instance.identifier{{if not .Static}}, owner.identifier{{end}}))) { reply ->
      codec.decodeReply(channel, reply, false, false).fold(
        onSuccess = { callback(Result.success(instance)) },
        onFailure = { callback(Result.failure(it)) }
      )
    }
  }
{{end}}
  fun setUpNewInstance() {
    val channel = "{{.NewInstance}}"
    messenger.setHandler(channel) { message ->
      val args = codec.decodeArguments(channel, message)
      codec.handle(channel) {
        val instance = {{$api.Name}}(this, args[0] as Long)
{{- range .Unattached}}
        instance.{{.Name}} = {{.FromWire}}
{{- end}}
        manager.addRemoteInstance(instance, instance.identifier)
        null
      }
    }
  }
{{- range .Methods}}
{{- if not .IsCall}}

  fun setUp{{upperFirst .Name}}(handler: ({{$api.Name}}{{if .HasParams}}, {{join .Params}}{{end}}) -> {{if .Return}}{{.Return}}{{else}}Unit{{end}}) {
    val channel = "{{.Channel}}"
    messenger.setHandler(channel) { message ->
      val args = codec.decodeArguments(channel, message)
      codec.handle(channel) {
        val instance = manager.getInstance(args[0] as Long) as {{$api.Name}}?
          ?: throw LoomException("unknown {{$api.Name}} identifier")
        {{if .Return}}val result = handler(instance{{range $i, $p := .Params}}, {{$p.FromWire}}{{end}})
        {{.ReturnToWire}}{{else}}handler(instance{{range $i, $p := .Params}}, {{$p.FromWire}}{{end}})
        null{{end}}
      }
    }
  }
{{- end}}
{{- end}}
}
{{end}}
{{- end}}
{{- if .Proxies}}
// Wires the shared instance lifecycle channels: outbound removal
// notifications, the inbound removeStrongReference and clear handlers,
// and a one-time clear telling the other side to drop whatever it
// still tracks for a previous session.
fun setUpInstanceManager(messenger: BinaryMessenger): InstanceManager {
  val codec = MessageCodec(listOf())
  val manager = InstanceManager { identifier ->
    messenger.send("{{.RemoveChannel}}", codec.encodeMessage(listOf(identifier))) { }
  }
  messenger.setHandler("{{.RemoveChannel}}") { message ->
    val args = codec.decodeArguments("{{.RemoveChannel}}", message)
    codec.handle("{{.RemoveChannel}}") {
      manager.remove(args[0] as Long)
      null
    }
  }
  messenger.setHandler("{{.ClearChannel}}") { message ->
    codec.handle("{{.ClearChannel}}") {
      manager.clear()
      null
    }
  }
  messenger.send("{{.ClearChannel}}", codec.encodeMessage(listOf<Any?>())) { }
  return manager
}
{{end -}}
`))
