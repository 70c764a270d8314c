package guard

// node is a tagged AST node. Every concrete node type is listed here.
type node interface {
	isNode()
}

type (
	literalNode struct {
		value any
	}

	identNode struct {
		name string
	}

	// memberNode is obj.name or obj[expr]; exactly one of name/index is set
	memberNode struct {
		object node
		name   string
		index  node
	}

	callNode struct {
		callee node
		args   []node
	}

	unaryNode struct {
		op      string
		operand node
	}

	binaryNode struct {
		op    string
		left  node
		right node
	}
)

func (literalNode) isNode() {}
func (identNode) isNode() {}
func (memberNode) isNode() {}
func (callNode) isNode() {}
func (unaryNode) isNode() {}
func (binaryNode) isNode() {}
