package server

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type
	withCtx   bool // func (*T) M(ctx, *Args, *Reply) error
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

// newService 创建 service 并扫描所有合法方法
func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("server: rcvr must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}

	// 用类型名作为 service name
	svc := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	svc.registerMethods()
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("server: type %s has no exported methods of suitable type", svc.name)
	}
	return svc, nil
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// registerMethods 扫描 struct 的导出方法，过滤出符合签名的：
//
//	func (t *T) Method(args *Args, reply *Reply) error
//	func (t *T) Method(ctx context.Context, args *Args, reply *Reply) error
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumOut() != 1 || mt.Out(0) != errorType {
			continue
		}

		first := 1
		withCtx := false
		switch mt.NumIn() {
		case 3:
		case 4:
			if mt.In(1) != contextType {
				continue
			}
			first, withCtx = 2, true
		default:
			continue
		}
		if mt.In(first).Kind() != reflect.Ptr || mt.In(first+1).Kind() != reflect.Ptr {
			continue
		}

		s.method[method.Name] = &methodType{
			method:    method,
			ArgType:   mt.In(first).Elem(),
			ReplyType: mt.In(first + 1).Elem(),
			withCtx:   withCtx,
		}
	}
}

// call decodes params into a fresh Args, invokes the method and returns the Reply.
func (s *service) call(ctx context.Context, mType *methodType, params json.RawMessage) (any, error) {
	argv := reflect.New(mType.ArgType)
	replyv := reflect.New(mType.ReplyType)

	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, argv.Interface()); err != nil {
			return nil, NewError(CodeInvalidParams, "Invalid params", err.Error())
		}
	}

	var results []reflect.Value
	if mType.withCtx {
		results = mType.method.Func.Call([]reflect.Value{s.rcvr, reflect.ValueOf(ctx), argv, replyv})
	} else {
		results = mType.method.Func.Call([]reflect.Value{s.rcvr, argv, replyv})
	}
	if !results[0].IsNil() {
		return nil, results[0].Interface().(error)
	}
	return replyv.Interface(), nil
}
