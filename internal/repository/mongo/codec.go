package mongo

import (
	"reflect"
	"strconv"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalCodec stores decimals as strings. Numbers written by hand in the
// shell decode as well.
type decimalCodec struct{}

func (decimalCodec) EncodeValue(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != decimalType {
		return bsoncodec.ValueEncoderError{Name: "DecimalEncodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}

	return vw.WriteString(val.Interface().(decimal.Decimal).String())
}

func (decimalCodec) DecodeValue(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != decimalType {
		return bsoncodec.ValueDecoderError{Name: "DecimalDecodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}

	var (
		s   string
		err error
	)

	switch vr.Type() {
	case bsontype.String:
		s, err = vr.ReadString()
	case bsontype.Double:
		var f float64
		f, err = vr.ReadDouble()
		s = strconv.FormatFloat(f, 'f', -1, 64)
	case bsontype.Int32:
		var i int32
		i, err = vr.ReadInt32()
		s = strconv.FormatInt(int64(i), 10)
	case bsontype.Int64:
		var i int64
		i, err = vr.ReadInt64()
		s = strconv.FormatInt(i, 10)
	case bsontype.Null:
		val.Set(reflect.ValueOf(decimal.Zero))
		return vr.ReadNull()
	default:
		return bsoncodec.ValueDecoderError{Name: "DecimalDecodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}
	if err != nil {
		return err
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(d))

	return nil
}

// Registry is the default registry plus the decimal codec.
func Registry() *bsoncodec.Registry {
	return bson.NewRegistryBuilder().
		RegisterTypeEncoder(decimalType, decimalCodec{}).
		RegisterTypeDecoder(decimalType, decimalCodec{}).
		Build()
}
