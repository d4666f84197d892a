package cache

import "encoding/json"

// JSONSerializer 默认序列化器
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
