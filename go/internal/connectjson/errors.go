package connectjson

import (
	"errors"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// NewError builds a connect error with a structured detail attached
func NewError(code connect.Code, err error, detail map[string]any) *connect.Error {
	cerr := connect.NewError(code, err)
	if len(detail) == 0 {
		return cerr
	}
	st, serr := structpb.NewStruct(detail)
	if serr != nil {
		return cerr
	}
	if d, derr := connect.NewErrorDetail(st); derr == nil {
		cerr.AddDetail(d)
	}
	return cerr
}

// Detail reads back the structured detail attached by NewError
func Detail(err error) (map[string]any, bool) {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return nil, false
	}
	for _, d := range cerr.Details() {
		v, verr := d.Value()
		if verr != nil {
			continue
		}
		if st, ok := v.(*structpb.Struct); ok {
			return st.AsMap(), true
		}
	}
	return nil, false
}
