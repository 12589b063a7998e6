package action

// Builder 收集动作声明，交给 Registry.Init 一次性注册
type Builder struct {
	descs []Descriptor
}

func NewBuilder() *Builder { return &Builder{} }

// Handle 注册需要玩家锁的动作
func (b *Builder) Handle(owner string, h HandlerFunc, messageTypes ...string) *Builder {
	return b.Add(Descriptor{Owner: owner, MessageTypes: messageTypes, Handle: h})
}

// HandleReadOnly 注册只读动作（不加玩家锁）
func (b *Builder) HandleReadOnly(owner string, h HandlerFunc, messageTypes ...string) *Builder {
	return b.Add(Descriptor{Owner: owner, MessageTypes: messageTypes, ReadOnly: true, Handle: h})
}

// Include 收录一个动作模块的全部声明
func (b *Builder) Include(p Provider) *Builder {
	return b.Add(p.Descriptors()...)
}

// Add 追加声明；消息类型列表被复制，调用方后续修改不影响已收集的声明
func (b *Builder) Add(ds ...Descriptor) *Builder {
	for _, d := range ds {
		d.MessageTypes = append([]string(nil), d.MessageTypes...)
		b.descs = append(b.descs, d)
	}
	return b
}

// Descriptors 返回已收集的声明副本
func (b *Builder) Descriptors() []Descriptor {
	return append([]Descriptor(nil), b.descs...)
}
