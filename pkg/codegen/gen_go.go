package codegen

import (
	"bytes"
	"fmt"

	"github.com/dave/jennifer/jen"

	"github.com/chazu/loom/compiler"
)

const (
	wirePath    = "github.com/chazu/loom/wire"
	contextPath = "context"
)

// GoEmitter emits the Go binding for a definition set: enums, data
// classes with their wire field lists, a codec constructor per api, host
// attach functions, client caller structs, and proxy registrars.
type GoEmitter struct{}

func (GoEmitter) Language() string { return "go" }

func (g GoEmitter) Emit(defs *compiler.Definitions, opts Options) ([]File, error) {
	pkg := opts.PackageName
	if pkg == "" {
		pkg = defs.PackageName
	}

	f := jen.NewFile(pkg)
	for _, line := range opts.CopyrightHeader {
		f.HeaderComment(line)
	}
	f.HeaderComment("Code generated by loom. DO NOT EDIT.")

	for _, e := range defs.Enums {
		emitGoEnum(f, e)
	}
	for _, c := range defs.Classes {
		if err := emitGoClass(f, c); err != nil {
			return nil, err
		}
	}

	proxySeen := false
	for _, api := range defs.Apis {
		if err := emitGoCodec(f, api, defs); err != nil {
			return nil, err
		}
		var err error
		switch api.Kind {
		case compiler.ApiHost:
			err = emitGoHostAPI(f, api, defs)
		case compiler.ApiClient:
			err = emitGoClientAPI(f, api, defs)
		case compiler.ApiProxy:
			err = emitGoProxyAPI(f, api, defs)
			proxySeen = true
		}
		if err != nil {
			return nil, err
		}
	}
	if proxySeen {
		emitGoInstanceManager(f, defs)
	}

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("codegen: render go: %w", err)
	}
	return []File{{Name: SnakeCase(defs.PackageName) + ".gen.go", Content: buf.Bytes()}}, nil
}

// ---

// goTypeRef maps a schema type to its Go declaration type. Nullable
// scalars and enums become pointers; classes and proxy instances are
// always pointers; containers are nil-able already so nullability
// collapses. Map keys drop nullability since Go map keys cannot usefully
// be pointers.
func goTypeRef(t *compiler.TypeDeclaration) *jen.Statement {
	if t.Enum != nil {
		if t.Nullable {
			return jen.Op("*").Id(t.BaseName)
		}
		return jen.Id(t.BaseName)
	}
	if t.Class != nil || t.Proxy != nil {
		return jen.Op("*").Id(t.BaseName)
	}

	switch t.BaseName {
	case compiler.TypeBool:
		return nullableScalar(t, jen.Bool())
	case compiler.TypeInt:
		return nullableScalar(t, jen.Int64())
	case compiler.TypeDouble:
		return nullableScalar(t, jen.Float64())
	case compiler.TypeString:
		return nullableScalar(t, jen.String())
	case compiler.TypeUint8List:
		return jen.Index().Byte()
	case compiler.TypeObject:
		return jen.Any()
	case compiler.TypeList:
		if len(t.TypeArguments) == 0 {
			return jen.Index().Any()
		}
		return jen.Index().Add(goTypeRef(&t.TypeArguments[0]))
	case compiler.TypeMap:
		if len(t.TypeArguments) == 0 {
			return jen.Map(jen.Any()).Any()
		}
		key := t.TypeArguments[0]
		key.Nullable = false
		return jen.Map(goTypeRef(&key)).Add(goTypeRef(&t.TypeArguments[1]))
	}
	return jen.Any()
}

func nullableScalar(t *compiler.TypeDeclaration, base *jen.Statement) *jen.Statement {
	if t.Nullable {
		return jen.Op("*").Add(base)
	}
	return base
}

// goZeroValue is the early-return value for a method of the given return
// type.
func goZeroValue(t *compiler.TypeDeclaration) *jen.Statement {
	if t.Enum != nil && !t.Nullable {
		return jen.Lit(0)
	}
	if t.Class != nil || t.Proxy != nil || t.Enum != nil {
		return jen.Nil()
	}
	switch t.BaseName {
	case compiler.TypeBool:
		if t.Nullable {
			return jen.Nil()
		}
		return jen.False()
	case compiler.TypeInt:
		if t.Nullable {
			return jen.Nil()
		}
		return jen.Lit(0)
	case compiler.TypeDouble:
		if t.Nullable {
			return jen.Nil()
		}
		return jen.Lit(0)
	case compiler.TypeString:
		if t.Nullable {
			return jen.Nil()
		}
		return jen.Lit("")
	}
	return jen.Nil()
}

// rejectNestedProxy returns an error when a proxy type appears inside
// generic type arguments, which the binding cannot express on the wire.
func rejectNestedProxy(t *compiler.TypeDeclaration) error {
	for i := range t.TypeArguments {
		arg := &t.TypeArguments[i]
		if arg.Proxy != nil {
			return fmt.Errorf("codegen: proxy type %s inside generic arguments is not supported", arg.BaseName)
		}
		if err := rejectNestedProxy(arg); err != nil {
			return err
		}
	}
	return nil
}

// goConvFunc builds a `func(any) (T, error)` expression converting a
// decoded wire value into the Go type of t. Containers compose element
// converters so nested generics nest cleanly. Proxy types are handled at
// their use sites, never here.
func goConvFunc(t *compiler.TypeDeclaration) *jen.Statement {
	if t.Enum != nil {
		name := t.BaseName
		if t.Nullable {
			return jen.Func().Params(jen.Id("v").Any()).Params(jen.Op("*").Id(name), jen.Error()).Block(
				jen.If(jen.Id("v").Op("==").Nil()).Block(jen.Return(jen.Nil(), jen.Nil())),
				jen.List(jen.Id("n"), jen.Err()).Op(":=").Qual(wirePath, "As").Index(jen.Int64()).Call(jen.Id("v")),
				jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
				jen.List(jen.Id("e"), jen.Err()).Op(":=").Id(name+"FromOrdinal").Call(jen.Id("n")),
				jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
				jen.Return(jen.Op("&").Id("e"), jen.Nil()),
			)
		}
		return jen.Func().Params(jen.Id("v").Any()).Params(jen.Id(name), jen.Error()).Block(
			jen.List(jen.Id("n"), jen.Err()).Op(":=").Qual(wirePath, "As").Index(jen.Int64()).Call(jen.Id("v")),
			jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Lit(0), jen.Err())),
			jen.Return(jen.Id(name+"FromOrdinal").Call(jen.Id("n"))),
		)
	}

	if t.Class != nil {
		name := t.BaseName
		as := jen.Qual(wirePath, "As").Index(jen.Op("*").Id(name))
		if !t.Nullable {
			return as
		}
		return jen.Func().Params(jen.Id("v").Any()).Params(jen.Op("*").Id(name), jen.Error()).Block(
			jen.If(jen.Id("v").Op("==").Nil()).Block(jen.Return(jen.Nil(), jen.Nil())),
			jen.Return(as.Clone().Call(jen.Id("v"))),
		)
	}

	switch t.BaseName {
	case compiler.TypeBool:
		return goScalarConv(t, jen.Bool())
	case compiler.TypeInt:
		return goScalarConv(t, jen.Int64())
	case compiler.TypeDouble:
		return goScalarConv(t, jen.Float64())
	case compiler.TypeString:
		return goScalarConv(t, jen.String())
	case compiler.TypeUint8List:
		return jen.Func().Params(jen.Id("v").Any()).Params(jen.Index().Byte(), jen.Error()).Block(
			jen.If(jen.Id("v").Op("==").Nil()).Block(jen.Return(jen.Nil(), jen.Nil())),
			jen.Return(jen.Qual(wirePath, "As").Index(jen.Index().Byte()).Call(jen.Id("v"))),
		)
	case compiler.TypeObject:
		return jen.Func().Params(jen.Id("v").Any()).Params(jen.Any(), jen.Error()).Block(
			jen.Return(jen.Id("v"), jen.Nil()),
		)
	case compiler.TypeList:
		elem := &compiler.TypeDeclaration{BaseName: compiler.TypeObject}
		if len(t.TypeArguments) > 0 {
			elem = &t.TypeArguments[0]
		}
		return jen.Func().Params(jen.Id("v").Any()).Params(jen.Index().Add(goTypeRef(elem)), jen.Error()).Block(
			jen.Return(jen.Qual(wirePath, "ConvertList").Call(jen.Id("v"), goConvFunc(elem))),
		)
	case compiler.TypeMap:
		key := &compiler.TypeDeclaration{BaseName: compiler.TypeObject}
		val := &compiler.TypeDeclaration{BaseName: compiler.TypeObject}
		if len(t.TypeArguments) == 2 {
			k := t.TypeArguments[0]
			k.Nullable = false
			key = &k
			val = &t.TypeArguments[1]
		}
		return jen.Func().Params(jen.Id("v").Any()).Params(jen.Map(goTypeRef(key)).Add(goTypeRef(val)), jen.Error()).Block(
			jen.Return(jen.Qual(wirePath, "ConvertMap").Call(jen.Id("v"), goConvFunc(key), goConvFunc(val))),
		)
	}
	return jen.Func().Params(jen.Id("v").Any()).Params(jen.Any(), jen.Error()).Block(
		jen.Return(jen.Id("v"), jen.Nil()),
	)
}

func goScalarConv(t *compiler.TypeDeclaration, base *jen.Statement) *jen.Statement {
	if t.Nullable {
		return jen.Qual(wirePath, "AsNullable").Index(base)
	}
	return jen.Qual(wirePath, "As").Index(base)
}

// goConvertCall is the `value, err :=` right-hand side converting expr to
// the Go type of t.
func goConvertCall(t *compiler.TypeDeclaration, expr *jen.Statement) *jen.Statement {
	return goConvFunc(t).Call(expr)
}

// ---

func emitDoc(f *jen.File, doc []string) {
	for _, line := range doc {
		f.Comment(line)
	}
}

func emitGoEnum(f *jen.File, e *compiler.Enum) {
	emitDoc(f, e.Doc)
	f.Type().Id(e.Name).Int64()
	f.Const().DefsFunc(func(g *jen.Group) {
		for i, m := range e.Members {
			for _, line := range m.Doc {
				g.Comment(line)
			}
			if i == 0 {
				g.Id(e.Name + UpperFirst(m.Name)).Id(e.Name).Op("=").Iota()
			} else {
				g.Id(e.Name + UpperFirst(m.Name))
			}
		}
	})
	f.Commentf("%sFromOrdinal maps a wire ordinal back to the enum, rejecting", e.Name)
	f.Comment("values outside the declared member range.")
	f.Func().Id(e.Name+"FromOrdinal").Params(jen.Id("ordinal").Int64()).Params(jen.Id(e.Name), jen.Error()).Block(
		jen.If(jen.Id("ordinal").Op("<").Lit(0).Op("||").Id("ordinal").Op(">=").Lit(len(e.Members))).Block(
			jen.Return(jen.Lit(0), jen.Qual("fmt", "Errorf").Call(jen.Lit("invalid "+e.Name+" ordinal %d"), jen.Id("ordinal"))),
		),
		jen.Return(jen.Id(e.Name).Call(jen.Id("ordinal")), jen.Nil()),
	)
}

func emitGoClass(f *jen.File, c *compiler.Class) error {
	for i := range c.Fields {
		if err := rejectNestedProxy(&c.Fields[i].Type); err != nil {
			return err
		}
	}

	emitDoc(f, c.Doc)
	f.Type().Id(c.Name).StructFunc(func(g *jen.Group) {
		for i := range c.Fields {
			fld := &c.Fields[i]
			for _, line := range fld.Doc {
				g.Comment(line)
			}
			g.Id(UpperFirst(fld.Name)).Add(goTypeRef(&fld.Type))
		}
	})

	// Field order is the wire order.
	f.Func().Params(jen.Id("x").Op("*").Id(c.Name)).Id("toList").Params().Index().Any().Block(
		jen.Return(jen.Index().Any().ValuesFunc(func(g *jen.Group) {
			for i := range c.Fields {
				g.Id("x").Dot(UpperFirst(c.Fields[i].Name))
			}
		})),
	)

	f.Func().Id(LowerFirst(c.Name)+"FromList").Params(jen.Id("fields").Index().Any()).Params(jen.Op("*").Id(c.Name), jen.Error()).BlockFunc(func(g *jen.Group) {
		g.If(jen.Len(jen.Id("fields")).Op("!=").Lit(len(c.Fields))).Block(
			jen.Return(jen.Nil(), jen.Qual("fmt", "Errorf").Call(
				jen.Lit(c.Name+": want "+fmt.Sprint(len(c.Fields))+" fields, got %d"), jen.Len(jen.Id("fields")))),
		)
		g.Id("x").Op(":=").Op("&").Id(c.Name).Values()
		for i := range c.Fields {
			fld := &c.Fields[i]
			field := jen.Id("fields").Index(jen.Lit(i))
			if fld.Type.BaseName == compiler.TypeObject {
				g.Id("x").Dot(UpperFirst(fld.Name)).Op("=").Add(field)
				continue
			}
			g.Block(
				jen.List(jen.Id("v"), jen.Err()).Op(":=").Add(goConvertCall(&fld.Type, field)),
				jen.If(jen.Err().Op("!=").Nil()).Block(
					jen.Return(jen.Nil(), jen.Qual("fmt", "Errorf").Call(jen.Lit(c.Name+"."+fld.Name+": %w"), jen.Err())),
				),
				jen.Id("x").Dot(UpperFirst(fld.Name)).Op("=").Id("v"),
			)
		}
		g.Return(jen.Id("x"), jen.Nil())
	})
	return nil
}

// emitGoCodec builds the per-api codec constructor registering one
// custom type per reachable class, tags assigned alphabetically.
func emitGoCodec(f *jen.File, api *compiler.Api, defs *compiler.Definitions) error {
	enumerated, err := compiler.EnumeratedClassesForApi(api, defs)
	if err != nil {
		return err
	}

	f.Commentf("New%sCodec builds the message codec for %s.", api.Name, api.Name)
	f.Func().Id("New"+api.Name+"Codec").Params().Op("*").Qual(wirePath, "MessageCodec").Block(
		jen.Return(jen.Qual(wirePath, "NewMessageCodec").CallFunc(func(g *jen.Group) {
			for _, ec := range enumerated {
				name := ec.Name
				g.Qual(wirePath, "CustomType").Values(jen.Dict{
					jen.Id("Tag"): jen.Lit(ec.Tag),
					jen.Id("Encode"): jen.Func().Params(jen.Id("value").Any()).Params(jen.Index().Any(), jen.Bool()).Block(
						jen.List(jen.Id("x"), jen.Id("ok")).Op(":=").Id("value").Assert(jen.Op("*").Id(name)),
						jen.If(jen.Op("!").Id("ok")).Block(jen.Return(jen.Nil(), jen.False())),
						jen.Return(jen.Id("x").Dot("toList").Call(), jen.True()),
					),
					jen.Id("Decode"): jen.Func().Params(jen.Id("fields").Index().Any()).Params(jen.Any(), jen.Error()).Block(
						jen.Return(jen.Id(LowerFirst(name)+"FromList").Call(jen.Id("fields"))),
					),
				})
			}
		})),
	)
	return nil
}

// ---

func goMethodParams(m *compiler.Method) ([]jen.Code, error) {
	params := []jen.Code{jen.Id("ctx").Qual(contextPath, "Context")}
	for i := range m.Parameters {
		p := &m.Parameters[i]
		if err := rejectNestedProxy(&p.Type); err != nil {
			return nil, err
		}
		params = append(params, jen.Id(p.Name).Add(goTypeRef(&p.Type)))
	}
	return params, nil
}

func goMethodResults(m *compiler.Method) []jen.Code {
	if m.ReturnType.IsVoid() {
		return []jen.Code{jen.Error()}
	}
	return []jen.Code{goTypeRef(&m.ReturnType), jen.Error()}
}

func emitGoHostAPI(f *jen.File, api *compiler.Api, defs *compiler.Definitions) error {
	emitDoc(f, api.Doc)
	var sigErr error
	f.Type().Id(api.Name).InterfaceFunc(func(g *jen.Group) {
		for _, m := range api.Methods {
			params, err := goMethodParams(m)
			if err != nil {
				sigErr = err
				return
			}
			for _, line := range m.Doc {
				g.Comment(line)
			}
			g.Id(UpperFirst(m.Name)).Params(params...).Params(goMethodResults(m)...)
		}
	})
	if sigErr != nil {
		return sigErr
	}

	f.Commentf("Attach%s installs one handler per method of api on messenger.", api.Name)
	f.Comment("A nil api removes the handlers instead.")
	f.Func().Id("Attach"+api.Name).Params(
		jen.Id("messenger").Qual(wirePath, "BinaryMessenger"),
		jen.Id("api").Id(api.Name),
	).BlockFunc(func(g *jen.Group) {
		if len(api.Methods) == 0 {
			return
		}
		g.Id("codec").Op(":=").Id("New" + api.Name + "Codec").Call()
		for _, m := range api.Methods {
			method := m
			g.Block(
				jen.Id("channel").Op(":=").Lit(ChannelName(defs.PackageName, api.Name, method.Name)),
				jen.If(jen.Id("api").Op("==").Nil()).Block(
					jen.Id("messenger").Dot("SetHandler").Call(jen.Id("channel"), jen.Nil()),
				).Else().Block(
					jen.Id("messenger").Dot("SetHandler").Call(jen.Id("channel"), jen.Qual(wirePath, "HandleCall").Call(
						jen.Id("codec"), jen.Id("channel"),
						jen.Func().Params(jen.Id("ctx").Qual(contextPath, "Context"), jen.Id("args").Index().Any()).Params(jen.Any(), jen.Error()).BlockFunc(func(b *jen.Group) {
							goHandlerBody(b, method, jen.Id("api"), nil)
						}),
						jen.Lit(!method.ReturnType.IsVoid()),
					)),
				),
			)
		}
	})
	return nil
}

// goHandlerBody emits the body of a HandleCall closure: length check,
// per-parameter conversion, the call on target, and the result. extra
// prepends statements and call arguments resolved by the caller, used by
// proxy apis for the instance receiver.
func goHandlerBody(g *jen.Group, m *compiler.Method, target *jen.Statement, extraArgs []jen.Code) {
	offset := len(extraArgs)
	g.If(jen.Len(jen.Id("args")).Op("!=").Lit(offset + len(m.Parameters))).Block(
		jen.Return(jen.Nil(), jen.Qual("fmt", "Errorf").Call(
			jen.Lit(m.Name+": want "+fmt.Sprint(offset+len(m.Parameters))+" arguments, got %d"), jen.Len(jen.Id("args")))),
	)

	callArgs := []jen.Code{jen.Id("ctx")}
	callArgs = append(callArgs, extraArgs...)
	for i := range m.Parameters {
		p := &m.Parameters[i]
		arg := jen.Id("args").Index(jen.Lit(offset + i))
		switch {
		case p.Type.BaseName == compiler.TypeObject:
			g.Id(p.Name).Op(":=").Add(arg)
		case p.Type.Proxy != nil:
			goResolveProxyArg(g, p.Name, p.Type.BaseName, arg, p.Type.Nullable)
		default:
			g.List(jen.Id(p.Name), jen.Err()).Op(":=").Add(goConvertCall(&p.Type, arg))
			g.If(jen.Err().Op("!=").Nil()).Block(
				jen.Return(jen.Nil(), jen.Qual("fmt", "Errorf").Call(jen.Lit(m.Name+"."+p.Name+": %w"), jen.Err())),
			)
		}
		callArgs = append(callArgs, jen.Id(p.Name))
	}

	call := target.Clone().Dot(UpperFirst(m.Name)).Call(callArgs...)
	if m.ReturnType.IsVoid() {
		g.If(jen.Err().Op(":=").Add(call), jen.Err().Op("!=").Nil()).Block(
			jen.Return(jen.Nil(), jen.Err()),
		)
		g.Return(jen.Nil(), jen.Nil())
		return
	}

	g.List(jen.Id("res"), jen.Err()).Op(":=").Add(call)
	g.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err()))
	if m.ReturnType.Proxy != nil {
		// Proxy results travel as their identifier, registering the
		// instance on first use.
		g.List(jen.Id("resID"), jen.Id("ok")).Op(":=").Id("manager").Dot("IdentifierOf").Call(jen.Id("res"))
		g.If(jen.Op("!").Id("ok")).Block(
			jen.Id("resID").Op("=").Qual(wirePath, "Register").Call(jen.Id("manager"), jen.Id("res")),
		)
		g.Return(jen.Id("resID"), jen.Nil())
		return
	}
	g.Return(jen.Id("res"), jen.Nil())
}

// goResolveProxyArg converts an identifier argument into the tracked
// instance. Requires a `manager` in scope, so only proxy api handlers
// may contain proxy-typed parameters.
func goResolveProxyArg(g *jen.Group, name, typeName string, arg *jen.Statement, nullable bool) {
	idVar := name + "ID"
	valVar := name + "Val"
	okVar := name + "OK"
	g.List(jen.Id(idVar), jen.Err()).Op(":=").Qual(wirePath, "As").Index(jen.Int64()).Call(arg)
	if nullable {
		g.Var().Id(name).Op("*").Id(typeName)
		g.If(jen.Err().Op("==").Nil()).Block(
			jen.List(jen.Id(valVar), jen.Id(okVar)).Op(":=").Id("manager").Dot("GetInstance").Call(jen.Id(idVar)),
			jen.If(jen.Op("!").Id(okVar)).Block(
				jen.Return(jen.Nil(), jen.Qual("fmt", "Errorf").Call(jen.Lit("unknown "+typeName+" identifier %d"), jen.Id(idVar))),
			),
			jen.Id(name).Op("=").Id(valVar).Assert(jen.Op("*").Id(typeName)),
		)
		return
	}
	g.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err()))
	g.List(jen.Id(valVar), jen.Id(okVar)).Op(":=").Id("manager").Dot("GetInstance").Call(jen.Id(idVar))
	g.If(jen.Op("!").Id(okVar)).Block(
		jen.Return(jen.Nil(), jen.Qual("fmt", "Errorf").Call(jen.Lit("unknown "+typeName+" identifier %d"), jen.Id(idVar))),
	)
	g.Id(name).Op(":=").Id(valVar).Assert(jen.Op("*").Id(typeName))
}

// ---

func emitGoClientAPI(f *jen.File, api *compiler.Api, defs *compiler.Definitions) error {
	emitDoc(f, api.Doc)
	f.Type().Id(api.Name).Struct(
		jen.Id("messenger").Qual(wirePath, "BinaryMessenger"),
		jen.Id("codec").Op("*").Qual(wirePath, "MessageCodec"),
	)

	f.Func().Id("New"+api.Name).Params(jen.Id("messenger").Qual(wirePath, "BinaryMessenger")).Op("*").Id(api.Name).Block(
		jen.Return(jen.Op("&").Id(api.Name).Values(jen.Dict{
			jen.Id("messenger"): jen.Id("messenger"),
			jen.Id("codec"):     jen.Id("New" + api.Name + "Codec").Call(),
		})),
	)

	for _, m := range api.Methods {
		if err := emitGoCallerMethod(f, api.Name, "a", jen.Id("a").Dot("messenger"), jen.Id("a").Dot("codec"), m,
			ChannelName(defs.PackageName, api.Name, m.Name), nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// emitGoCallerMethod emits one outbound method: encode the argument
// list, send, decode the reply. prelude statements and leading payload
// expressions come from proxy callers that prepend the instance
// identifier.
func emitGoCallerMethod(f *jen.File, recvType, recvName string, messenger, codec *jen.Statement, m *compiler.Method, channel string, prelude []jen.Code, leading []jen.Code) error {
	params, err := goMethodParams(m)
	if err != nil {
		return err
	}
	hasResult := !m.ReturnType.IsVoid()

	zero := func() *jen.Statement { return goZeroValue(&m.ReturnType) }
	fail := func(errExpr jen.Code) jen.Code {
		if hasResult {
			return jen.Return(zero(), errExpr)
		}
		return jen.Return(errExpr)
	}

	emitDoc(f, m.Doc)
	f.Func().Params(jen.Id(recvName).Op("*").Id(recvType)).Id(UpperFirst(m.Name)).Params(params...).Params(goMethodResults(m)...).BlockFunc(func(g *jen.Group) {
		for _, stmt := range prelude {
			g.Add(stmt)
		}
		g.Id("channel").Op(":=").Lit(channel)

		payload := append([]jen.Code{}, leading...)
		for i := range m.Parameters {
			p := &m.Parameters[i]
			if p.Type.Proxy != nil {
				idVar := p.Name + "ID"
				g.List(jen.Id(idVar), jen.Id("ok")).Op(":=").Id(recvName).Dot("manager").Dot("IdentifierOf").Call(jen.Id(p.Name))
				g.If(jen.Op("!").Id("ok")).Block(
					fail(jen.Qual("fmt", "Errorf").Call(jen.Lit(p.Type.BaseName+" argument "+p.Name+" is not tracked"))),
				)
				payload = append(payload, jen.Id(idVar))
				continue
			}
			payload = append(payload, jen.Id(p.Name))
		}

		g.List(jen.Id("payload"), jen.Err()).Op(":=").Add(codec.Clone()).Dot("EncodeMessage").Call(jen.Index().Any().Values(payload...))
		g.If(jen.Err().Op("!=").Nil()).Block(
			fail(jen.Qual("fmt", "Errorf").Call(jen.Lit("encode %s: %w"), jen.Id("channel"), jen.Err())),
		)
		g.List(jen.Id("reply"), jen.Err()).Op(":=").Add(messenger.Clone()).Dot("Send").Call(jen.Id("ctx"), jen.Id("channel"), jen.Id("payload"))
		g.If(jen.Err().Op("!=").Nil()).Block(fail(jen.Err()))

		if !hasResult {
			g.List(jen.Id("_"), jen.Err()).Op("=").Add(codec.Clone()).Dot("DecodeReply").Call(jen.Id("channel"), jen.Id("reply"), jen.False(), jen.False())
			g.Return(jen.Err())
			return
		}

		g.List(jen.Id("result"), jen.Err()).Op(":=").Add(codec.Clone()).Dot("DecodeReply").Call(
			jen.Id("channel"), jen.Id("reply"), jen.True(), jen.Lit(m.ReturnType.Nullable))
		g.If(jen.Err().Op("!=").Nil()).Block(fail(jen.Err()))

		switch {
		case m.ReturnType.BaseName == compiler.TypeObject:
			g.Return(jen.Id("result"), jen.Nil())
		case m.ReturnType.Proxy != nil:
			name := m.ReturnType.BaseName
			g.List(jen.Id("resultID"), jen.Err()).Op(":=").Qual(wirePath, "As").Index(jen.Int64()).Call(jen.Id("result"))
			g.If(jen.Err().Op("!=").Nil()).Block(fail(jen.Err()))
			g.List(jen.Id("v"), jen.Id("found")).Op(":=").Id(recvName).Dot("manager").Dot("GetInstance").Call(jen.Id("resultID"))
			g.If(jen.Op("!").Id("found")).Block(
				fail(jen.Qual("fmt", "Errorf").Call(jen.Lit("unknown "+name+" identifier %d"), jen.Id("resultID"))),
			)
			g.Return(jen.Id("v").Assert(jen.Op("*").Id(name)), jen.Nil())
		default:
			g.Return(goConvertCall(&m.ReturnType, jen.Id("result")))
		}
	})
	return nil
}

// ---

func goConstructorName(api *compiler.Api, ctor *compiler.Constructor) string {
	if ctor.Name == "" {
		return "New" + api.Name
	}
	return "New" + api.Name + UpperFirst(ctor.Name)
}

func goConstructorChannelMethod(ctor *compiler.Constructor) string {
	if ctor.Name == "" {
		return "new"
	}
	return ctor.Name
}

func emitGoProxyAPI(f *jen.File, api *compiler.Api, defs *compiler.Definitions) error {
	// Instance record: unattached fields are plain data carried across in
	// newInstance announcements; Impl holds whatever host object backs
	// the proxy and survives the manager's copy-on-revive.
	emitDoc(f, api.Doc)
	f.Type().Id(api.Name).StructFunc(func(g *jen.Group) {
		for i := range api.Fields {
			fld := &api.Fields[i]
			if fld.Attached {
				continue
			}
			for _, line := range fld.Doc {
				g.Comment(line)
			}
			g.Id(UpperFirst(fld.Name)).Add(goTypeRef(&fld.Type))
		}
		g.Comment("Impl is the host object behind this proxy instance.")
		g.Id("Impl").Any()
	})

	// Handler interface.
	f.Commentf("%sHandler supplies the host behavior behind the %s proxy.", api.Name, api.Name)
	var sigErr error
	f.Type().Id(api.Name + "Handler").InterfaceFunc(func(g *jen.Group) {
		for _, ctor := range api.Constructors {
			params := []jen.Code{jen.Id("ctx").Qual(contextPath, "Context")}
			for i := range ctor.Parameters {
				p := &ctor.Parameters[i]
				if err := rejectNestedProxy(&p.Type); err != nil {
					sigErr = err
					return
				}
				params = append(params, jen.Id(p.Name).Add(goTypeRef(&p.Type)))
			}
			for _, line := range ctor.Doc {
				g.Comment(line)
			}
			g.Id(goConstructorName(api, ctor)).Params(params...).Params(jen.Op("*").Id(api.Name), jen.Error())
		}
		for i := range api.Fields {
			fld := &api.Fields[i]
			if !fld.Attached {
				continue
			}
			for _, line := range fld.Doc {
				g.Comment(line)
			}
			params := []jen.Code{jen.Id("ctx").Qual(contextPath, "Context")}
			if !fld.Static {
				params = append(params, jen.Id("instance").Op("*").Id(api.Name))
			}
			g.Id(UpperFirst(fld.Name)).Params(params...).Params(goTypeRef(&fld.Type), jen.Error())
		}
		for _, m := range api.Methods {
			if m.IsCallback {
				continue
			}
			params, err := goMethodParams(m)
			if err != nil {
				sigErr = err
				return
			}
			if !m.IsStatic {
				rest := params[1:]
				params = append([]jen.Code{params[0], jen.Id("instance").Op("*").Id(api.Name)}, rest...)
			}
			for _, line := range m.Doc {
				g.Comment(line)
			}
			g.Id(UpperFirst(m.Name)).Params(params...).Params(goMethodResults(m)...)
		}
	})
	if sigErr != nil {
		return sigErr
	}

	// Caller struct used for callbacks and instance announcements.
	f.Commentf("%sProxy drives the client side of the %s proxy: callback", api.Name, api.Name)
	f.Comment("methods and host-created instance announcements.")
	f.Type().Id(api.Name + "Proxy").Struct(
		jen.Id("messenger").Qual(wirePath, "BinaryMessenger"),
		jen.Id("codec").Op("*").Qual(wirePath, "MessageCodec"),
		jen.Id("manager").Op("*").Qual(wirePath, "InstanceManager"),
	)

	if err := emitGoProxyRegister(f, api, defs); err != nil {
		return err
	}

	// NewInstance announces a host-created instance together with its
	// unattached field values.
	f.Commentf("NewInstance tracks a host-created %s and announces it to the", api.Name)
	f.Comment("other side. Announcing an already tracked instance does nothing.")
	f.Func().Params(jen.Id("p").Op("*").Id(api.Name+"Proxy")).Id("NewInstance").Params(
		jen.Id("ctx").Qual(contextPath, "Context"),
		jen.Id("instance").Op("*").Id(api.Name),
	).Error().BlockFunc(func(g *jen.Group) {
		g.If(jen.List(jen.Id("_"), jen.Id("ok")).Op(":=").Id("p").Dot("manager").Dot("IdentifierOf").Call(jen.Id("instance")), jen.Id("ok")).Block(
			jen.Return(jen.Nil()),
		)
		g.Id("identifier").Op(":=").Qual(wirePath, "Register").Call(jen.Id("p").Dot("manager"), jen.Id("instance"))
		g.Id("channel").Op(":=").Lit(ChannelName(defs.PackageName, api.Name, "newInstance"))
		payload := []jen.Code{jen.Id("identifier")}
		for i := range api.Fields {
			fld := &api.Fields[i]
			if fld.Attached {
				continue
			}
			payload = append(payload, jen.Id("instance").Dot(UpperFirst(fld.Name)))
		}
		g.List(jen.Id("payload"), jen.Err()).Op(":=").Id("p").Dot("codec").Dot("EncodeMessage").Call(jen.Index().Any().Values(payload...))
		g.If(jen.Err().Op("!=").Nil()).Block(
			jen.Return(jen.Qual("fmt", "Errorf").Call(jen.Lit("encode %s: %w"), jen.Id("channel"), jen.Err())),
		)
		g.List(jen.Id("reply"), jen.Err()).Op(":=").Id("p").Dot("messenger").Dot("Send").Call(jen.Id("ctx"), jen.Id("channel"), jen.Id("payload"))
		g.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Err()))
		g.List(jen.Id("_"), jen.Err()).Op("=").Id("p").Dot("codec").Dot("DecodeReply").Call(jen.Id("channel"), jen.Id("reply"), jen.False(), jen.False())
		g.Return(jen.Err())
	})

	// Callback methods.
	for _, m := range api.Methods {
		if !m.IsCallback {
			continue
		}
		prelude := []jen.Code{
			jen.List(jen.Id("identifier"), jen.Id("tracked")).Op(":=").Id("p").Dot("manager").Dot("IdentifierOf").Call(jen.Id("instance")),
			jen.If(jen.Op("!").Id("tracked")).BlockFunc(func(b *jen.Group) {
				errExpr := jen.Qual("fmt", "Errorf").Call(jen.Lit(api.Name + " instance is not tracked; announce it with NewInstance first"))
				if m.ReturnType.IsVoid() {
					b.Return(errExpr)
				} else {
					b.Return(goZeroValue(&m.ReturnType), errExpr)
				}
			}),
		}
		if err := emitGoProxyCallback(f, api, defs, m, prelude); err != nil {
			return err
		}
	}
	return nil
}

// emitGoProxyCallback emits one host-to-client callback method on the
// proxy caller struct.
func emitGoProxyCallback(f *jen.File, api *compiler.Api, defs *compiler.Definitions, m *compiler.Method, prelude []jen.Code) error {
	params := []jen.Code{jen.Id("ctx").Qual(contextPath, "Context"), jen.Id("instance").Op("*").Id(api.Name)}
	for i := range m.Parameters {
		p := &m.Parameters[i]
		if err := rejectNestedProxy(&p.Type); err != nil {
			return err
		}
		params = append(params, jen.Id(p.Name).Add(goTypeRef(&p.Type)))
	}

	hasResult := !m.ReturnType.IsVoid()
	fail := func(errExpr jen.Code) jen.Code {
		if hasResult {
			return jen.Return(goZeroValue(&m.ReturnType), errExpr)
		}
		return jen.Return(errExpr)
	}

	emitDoc(f, m.Doc)
	f.Func().Params(jen.Id("p").Op("*").Id(api.Name+"Proxy")).Id(UpperFirst(m.Name)).Params(params...).Params(goMethodResults(m)...).BlockFunc(func(g *jen.Group) {
		for _, stmt := range prelude {
			g.Add(stmt)
		}
		g.Id("channel").Op(":=").Lit(ChannelName(defs.PackageName, api.Name, m.Name))

		payload := []jen.Code{jen.Id("identifier")}
		for i := range m.Parameters {
			p := &m.Parameters[i]
			if p.Type.Proxy != nil {
				idVar := p.Name + "ID"
				g.List(jen.Id(idVar), jen.Id("ok")).Op(":=").Id("p").Dot("manager").Dot("IdentifierOf").Call(jen.Id(p.Name))
				g.If(jen.Op("!").Id("ok")).Block(
					fail(jen.Qual("fmt", "Errorf").Call(jen.Lit(p.Type.BaseName + " argument " + p.Name + " is not tracked"))),
				)
				payload = append(payload, jen.Id(idVar))
				continue
			}
			payload = append(payload, jen.Id(p.Name))
		}

		g.List(jen.Id("payload"), jen.Err()).Op(":=").Id("p").Dot("codec").Dot("EncodeMessage").Call(jen.Index().Any().Values(payload...))
		g.If(jen.Err().Op("!=").Nil()).Block(
			fail(jen.Qual("fmt", "Errorf").Call(jen.Lit("encode %s: %w"), jen.Id("channel"), jen.Err())),
		)
		g.List(jen.Id("reply"), jen.Err()).Op(":=").Id("p").Dot("messenger").Dot("Send").Call(jen.Id("ctx"), jen.Id("channel"), jen.Id("payload"))
		g.If(jen.Err().Op("!=").Nil()).Block(fail(jen.Err()))

		if !hasResult {
			g.List(jen.Id("_"), jen.Err()).Op("=").Id("p").Dot("codec").Dot("DecodeReply").Call(jen.Id("channel"), jen.Id("reply"), jen.False(), jen.False())
			g.Return(jen.Err())
			return
		}
		g.List(jen.Id("result"), jen.Err()).Op(":=").Id("p").Dot("codec").Dot("DecodeReply").Call(
			jen.Id("channel"), jen.Id("reply"), jen.True(), jen.Lit(m.ReturnType.Nullable))
		g.If(jen.Err().Op("!=").Nil()).Block(fail(jen.Err()))
		if m.ReturnType.BaseName == compiler.TypeObject {
			g.Return(jen.Id("result"), jen.Nil())
			return
		}
		g.Return(goConvertCall(&m.ReturnType, jen.Id("result")))
	})
	return nil
}

// emitGoProxyRegister emits the registrar installing the host-side
// channels: constructors, attached fields, and host-bound methods.
func emitGoProxyRegister(f *jen.File, api *compiler.Api, defs *compiler.Definitions) error {
	f.Commentf("Register%sProxy installs the host-side channels for %s and", api.Name, api.Name)
	f.Comment("returns the caller for callbacks and announcements.")
	f.Func().Id("Register"+api.Name+"Proxy").Params(
		jen.Id("messenger").Qual(wirePath, "BinaryMessenger"),
		jen.Id("manager").Op("*").Qual(wirePath, "InstanceManager"),
		jen.Id("handler").Id(api.Name+"Handler"),
	).Op("*").Id(api.Name + "Proxy").BlockFunc(func(g *jen.Group) {
		g.Id("codec").Op(":=").Id("New" + api.Name + "Codec").Call()

		for _, ctor := range api.Constructors {
			ctor := ctor
			g.Block(
				jen.Id("channel").Op(":=").Lit(ChannelName(defs.PackageName, api.Name, goConstructorChannelMethod(ctor))),
				jen.Id("messenger").Dot("SetHandler").Call(jen.Id("channel"), jen.Qual(wirePath, "HandleCall").Call(
					jen.Id("codec"), jen.Id("channel"),
					jen.Func().Params(jen.Id("ctx").Qual(contextPath, "Context"), jen.Id("args").Index().Any()).Params(jen.Any(), jen.Error()).BlockFunc(func(b *jen.Group) {
						want := 1 + len(ctor.Parameters)
						b.If(jen.Len(jen.Id("args")).Op("!=").Lit(want)).Block(
							jen.Return(jen.Nil(), jen.Qual("fmt", "Errorf").Call(
								jen.Lit(goConstructorChannelMethod(ctor)+": want "+fmt.Sprint(want)+" arguments, got %d"), jen.Len(jen.Id("args")))),
						)
						b.List(jen.Id("identifier"), jen.Err()).Op(":=").Qual(wirePath, "As").Index(jen.Int64()).Call(jen.Id("args").Index(jen.Lit(0)))
						b.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err()))
						callArgs := []jen.Code{jen.Id("ctx")}
						for i := range ctor.Parameters {
							p := &ctor.Parameters[i]
							arg := jen.Id("args").Index(jen.Lit(1 + i))
							switch {
							case p.Type.BaseName == compiler.TypeObject:
								b.Id(p.Name).Op(":=").Add(arg)
							case p.Type.Proxy != nil:
								goResolveProxyArg(b, p.Name, p.Type.BaseName, arg, p.Type.Nullable)
							default:
								b.List(jen.Id(p.Name), jen.Err()).Op(":=").Add(goConvertCall(&p.Type, arg))
								b.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err()))
							}
							callArgs = append(callArgs, jen.Id(p.Name))
						}
						b.List(jen.Id("instance"), jen.Err()).Op(":=").Id("handler").Dot(goConstructorName(api, ctor)).Call(callArgs...)
						b.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err()))
						b.If(jen.Err().Op(":=").Qual(wirePath, "RegisterRemote").Call(jen.Id("manager"), jen.Id("instance"), jen.Id("identifier")), jen.Err().Op("!=").Nil()).Block(
							jen.Return(jen.Nil(), jen.Err()),
						)
						b.Return(jen.Nil(), jen.Nil())
					}),
					jen.False(),
				)),
			)
		}

		for i := range api.Fields {
			fld := &api.Fields[i]
			if !fld.Attached {
				continue
			}
			g.Block(
				jen.Id("channel").Op(":=").Lit(ChannelName(defs.PackageName, api.Name, fld.Name)),
				jen.Id("messenger").Dot("SetHandler").Call(jen.Id("channel"), jen.Qual(wirePath, "HandleCall").Call(
					jen.Id("codec"), jen.Id("channel"),
					jen.Func().Params(jen.Id("ctx").Qual(contextPath, "Context"), jen.Id("args").Index().Any()).Params(jen.Any(), jen.Error()).BlockFunc(func(b *jen.Group) {
						want := 1
						if !fld.Static {
							want = 2
						}
						b.If(jen.Len(jen.Id("args")).Op("!=").Lit(want)).Block(
							jen.Return(jen.Nil(), jen.Qual("fmt", "Errorf").Call(
								jen.Lit(fld.Name+": want "+fmt.Sprint(want)+" arguments, got %d"), jen.Len(jen.Id("args")))),
						)
						b.List(jen.Id("identifier"), jen.Err()).Op(":=").Qual(wirePath, "As").Index(jen.Int64()).Call(jen.Id("args").Index(jen.Lit(0)))
						b.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err()))
						callArgs := []jen.Code{jen.Id("ctx")}
						if !fld.Static {
							goResolveProxyArg(b, "owner", api.Name, jen.Id("args").Index(jen.Lit(1)), false)
							callArgs = append(callArgs, jen.Id("owner"))
						}
						b.List(jen.Id("value"), jen.Err()).Op(":=").Id("handler").Dot(UpperFirst(fld.Name)).Call(callArgs...)
						b.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err()))
						b.If(jen.Err().Op(":=").Qual(wirePath, "RegisterRemote").Call(jen.Id("manager"), jen.Id("value"), jen.Id("identifier")), jen.Err().Op("!=").Nil()).Block(
							jen.Return(jen.Nil(), jen.Err()),
						)
						b.Return(jen.Nil(), jen.Nil())
					}),
					jen.False(),
				)),
			)
		}

		for _, m := range api.Methods {
			if m.IsCallback {
				continue
			}
			method := m
			extra := []jen.Code{}
			g.Block(
				jen.Id("channel").Op(":=").Lit(ChannelName(defs.PackageName, api.Name, method.Name)),
				jen.Id("messenger").Dot("SetHandler").Call(jen.Id("channel"), jen.Qual(wirePath, "HandleCall").Call(
					jen.Id("codec"), jen.Id("channel"),
					jen.Func().Params(jen.Id("ctx").Qual(contextPath, "Context"), jen.Id("args").Index().Any()).Params(jen.Any(), jen.Error()).BlockFunc(func(b *jen.Group) {
						if method.IsStatic {
							goHandlerBody(b, method, jen.Id("handler"), extra)
							return
						}
						receiver := *method
						receiver.Parameters = append([]compiler.Parameter{{
							Name: "instance",
							Type: compiler.TypeDeclaration{BaseName: api.Name, Proxy: api},
						}}, method.Parameters...)
						goHandlerBody(b, &receiver, jen.Id("handler"), nil)
					}),
					jen.Lit(!method.ReturnType.IsVoid()),
				)),
			)
		}

		g.Return(jen.Op("&").Id(api.Name + "Proxy").Values(jen.Dict{
			jen.Id("messenger"): jen.Id("messenger"),
			jen.Id("codec"):     jen.Id("codec"),
			jen.Id("manager"):   jen.Id("manager"),
		}))
	})
	return nil
}

// emitGoInstanceManager emits the package-level instance table wiring:
// outbound removal notifications plus the inbound removeStrongReference
// and clear channels.
func emitGoInstanceManager(f *jen.File, defs *compiler.Definitions) {
	removeChannel := ChannelName(defs.PackageName, InstanceManagerAPIName, "removeStrongReference")
	clearChannel := ChannelName(defs.PackageName, InstanceManagerAPIName, "clear")

	f.Comment("NewInstanceManager builds the proxy instance table for messenger,")
	f.Comment("wiring the lifecycle channels in both directions. The remote side")
	f.Comment("sends a clear when it sets up, dropping whatever this table still")
	f.Comment("holds for a previous session.")
	f.Func().Id("NewInstanceManager").Params(jen.Id("messenger").Qual(wirePath, "BinaryMessenger")).Op("*").Qual(wirePath, "InstanceManager").Block(
		jen.Id("codec").Op(":=").Qual(wirePath, "NewMessageCodec").Call(),
		jen.Id("manager").Op(":=").Qual(wirePath, "NewInstanceManager").Call(
			jen.Func().Params(jen.Id("identifier").Int64()).Block(
				jen.List(jen.Id("payload"), jen.Err()).Op(":=").Id("codec").Dot("EncodeMessage").Call(jen.Index().Any().Values(jen.Id("identifier"))),
				jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return()),
				jen.List(jen.Id("_"), jen.Id("_")).Op("=").Id("messenger").Dot("Send").Call(
					jen.Qual(contextPath, "Background").Call(), jen.Lit(removeChannel), jen.Id("payload")),
			),
		),
		jen.Id("messenger").Dot("SetHandler").Call(jen.Lit(removeChannel), jen.Qual(wirePath, "HandleCall").Call(
			jen.Id("codec"), jen.Lit(removeChannel),
			jen.Func().Params(jen.Id("_").Qual(contextPath, "Context"), jen.Id("args").Index().Any()).Params(jen.Any(), jen.Error()).Block(
				jen.If(jen.Len(jen.Id("args")).Op("!=").Lit(1)).Block(
					jen.Return(jen.Nil(), jen.Qual("fmt", "Errorf").Call(jen.Lit("removeStrongReference: want 1 argument, got %d"), jen.Len(jen.Id("args")))),
				),
				jen.List(jen.Id("identifier"), jen.Err()).Op(":=").Qual(wirePath, "As").Index(jen.Int64()).Call(jen.Id("args").Index(jen.Lit(0))),
				jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
				jen.Id("manager").Dot("Remove").Call(jen.Id("identifier")),
				jen.Return(jen.Nil(), jen.Nil()),
			),
			jen.False(),
		)),
		jen.Id("messenger").Dot("SetHandler").Call(jen.Lit(clearChannel), jen.Qual(wirePath, "HandleCall").Call(
			jen.Id("codec"), jen.Lit(clearChannel),
			jen.Func().Params(jen.Id("_").Qual(contextPath, "Context"), jen.Id("_").Index().Any()).Params(jen.Any(), jen.Error()).Block(
				jen.Id("manager").Dot("Clear").Call(),
				jen.Return(jen.Nil(), jen.Nil()),
			),
			jen.False(),
		)),
		jen.Return(jen.Id("manager")),
	)
}
