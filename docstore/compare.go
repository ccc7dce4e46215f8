package docstore

import (
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func rawToGo(rv bson.RawValue) any {
	switch rv.Type {
	case bsontype.String:
		return rv.StringValue()
	case bsontype.DateTime:
		return rv.Time().UTC()
	case bsontype.Int32:
		return int64(rv.Int32())
	case bsontype.Int64:
		return rv.Int64()
	case bsontype.Double:
		return rv.Double()
	case bsontype.Boolean:
		return rv.Boolean()
	case bsontype.Null, bsontype.Undefined:
		return nil
	default:
		var v any
		if err := rv.Unmarshal(&v); err != nil {
			return nil
		}
		return v
	}
}

// normalize reduz valores a string, float64, bool, time.Time ou nil.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case primitive.DateTime:
		return x.Time().UTC()
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case bool:
		return x
	default:
		// tipos nomeados sobre string, como models.Role
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
			return rv.String()
		}
		return v
	}
}

// typeOrder segue a ordem de tipos do BSON: null < números < strings < bool < datas.
func typeOrder(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64:
		return 1
	case string:
		return 2
	case bool:
		return 3
	case time.Time:
		return 4
	default:
		return 5
	}
}

// compareValues devolve -1, 0 ou 1.
func compareValues(a, b any) int {
	a, b = normalize(a), normalize(b)
	ta, tb := typeOrder(a), typeOrder(b)
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case nil:
		return 0
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case time.Time:
		y := b.(time.Time)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	}
	return 0
}
