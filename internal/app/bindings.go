package app

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/game-server/internal/action"
)

// BindingDoc 动作表导出条目
type BindingDoc struct {
	MessageType string `yaml:"message_type"`
	Owner       string `yaml:"owner"`
	ReadOnly    bool   `yaml:"read_only,omitempty"`
}

// WriteBindingsYAML 以 YAML 输出动作表，供发布前核对消息类型绑定
func WriteBindingsYAML(w io.Writer, routes []action.Route) error {
	docs := make([]BindingDoc, 0, len(routes))
	for _, r := range routes {
		docs = append(docs, BindingDoc{MessageType: r.MessageType, Owner: r.Owner, ReadOnly: r.ReadOnly})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"actions": docs}); err != nil {
		return err
	}
	return enc.Close()
}
