package expr

// Sequence operators understood by the checker, evaluator and translator.
const (
	MethodAny               = "Any"
	MethodAll               = "All"
	MethodCount             = "Count"
	MethodWhere             = "Where"
	MethodSelect            = "Select"
	MethodSelectMany        = "SelectMany"
	MethodFirst             = "First"
	MethodFirstOrDefault    = "FirstOrDefault"
	MethodContains          = "Contains"
	MethodOrderBy           = "OrderBy"
	MethodOrderByDescending = "OrderByDescending"
	MethodThenBy            = "ThenBy"
	MethodThenByDescending  = "ThenByDescending"
	MethodGroupBy           = "GroupBy"
	MethodSum               = "Sum"
	MethodMin               = "Min"
	MethodMax               = "Max"
)

// String operators.
const (
	MethodStartsWith = "StartsWith"
	MethodEndsWith   = "EndsWith"
	MethodToUpper    = "ToUpper"
	MethodToLower    = "ToLower"
)

func (c *Checker) checkCall(call MethodCall, env *Env) (Type, error) {
	recv, err := c.Check(call.Receiver, env)
	if err != nil {
		return Type{}, err
	}
	if recv.IsSequence() {
		return c.checkSequenceCall(call, recv, env)
	}
	if recv.Kind == KindString {
		return c.checkStringCall(call, env)
	}
	return Type{}, typeErrorf(call, "method %s is not defined on %s", call.Method, recv)
}

// lambdaResult checks the lambda in argument position i against the
// receiver element type and returns the lambda body type.
func (c *Checker) lambdaResult(call MethodCall, i int, recv Type, env *Env) (Type, error) {
	l, ok := Deref(call.Args[i]).(Lambda)
	if !ok {
		return Type{}, typeErrorf(call, "argument %d of %s must be a lambda", i+1, call.Method)
	}
	inner, err := c.BindLambda(recv, l, env)
	if err != nil {
		return Type{}, err
	}
	return c.Check(l.Body, inner)
}

func (c *Checker) predicateArg(call MethodCall, recv Type, env *Env) error {
	t, err := c.lambdaResult(call, 0, recv, env)
	if err != nil {
		return err
	}
	if t.Kind != KindBool {
		return typeErrorf(call, "predicate of %s must return bool, got %s", call.Method, t)
	}
	return nil
}

func (c *Checker) checkSequenceCall(call MethodCall, recv Type, env *Env) (Type, error) {
	elem := *recv.Elem
	argc := len(call.Args)

	switch call.Method {
	case MethodAny, MethodCount, MethodFirst, MethodFirstOrDefault:
		if argc > 1 {
			break
		}
		if argc == 1 {
			if err := c.predicateArg(call, recv, env); err != nil {
				return Type{}, err
			}
		}
		switch call.Method {
		case MethodAny:
			return BoolType, nil
		case MethodCount:
			return IntType, nil
		default:
			return elem, nil
		}

	case MethodAll:
		if argc != 1 {
			break
		}
		if err := c.predicateArg(call, recv, env); err != nil {
			return Type{}, err
		}
		return BoolType, nil

	case MethodWhere:
		if argc != 1 {
			break
		}
		if err := c.predicateArg(call, recv, env); err != nil {
			return Type{}, err
		}
		return SequenceOf(elem), nil

	case MethodSelect:
		if argc != 1 {
			break
		}
		t, err := c.lambdaResult(call, 0, recv, env)
		if err != nil {
			return Type{}, err
		}
		return SequenceOf(t), nil

	case MethodSelectMany:
		if argc != 1 {
			break
		}
		t, err := c.lambdaResult(call, 0, recv, env)
		if err != nil {
			return Type{}, err
		}
		inner, ok := t.ElementType()
		if !ok {
			return Type{}, typeErrorf(call, "SelectMany selector must return a sequence, got %s", t)
		}
		return SequenceOf(inner), nil

	case MethodContains:
		if argc != 1 {
			break
		}
		t, err := c.Check(call.Args[0], env)
		if err != nil {
			return Type{}, err
		}
		if _, ok := Unify(elem, t); !ok {
			return Type{}, typeErrorf(call, "Contains argument %s does not match element %s", t, elem)
		}
		return BoolType, nil

	case MethodOrderBy, MethodOrderByDescending, MethodThenBy, MethodThenByDescending:
		if argc != 1 {
			break
		}
		t, err := c.lambdaResult(call, 0, recv, env)
		if err != nil {
			return Type{}, err
		}
		if !orderable(t) && t.Kind != KindBool {
			return Type{}, typeErrorf(call, "cannot order by %s", t)
		}
		return SequenceOf(elem), nil

	case MethodGroupBy:
		if argc != 1 {
			break
		}
		key, err := c.lambdaResult(call, 0, recv, env)
		if err != nil {
			return Type{}, err
		}
		return SequenceOf(GroupOf(key, elem)), nil

	case MethodSum, MethodMin, MethodMax:
		if argc != 1 {
			break
		}
		t, err := c.lambdaResult(call, 0, recv, env)
		if err != nil {
			return Type{}, err
		}
		if t.Kind != KindInt {
			return Type{}, typeErrorf(call, "%s selector must return int, got %s", call.Method, t)
		}
		return IntType, nil

	default:
		return Type{}, typeErrorf(call, "method %s is not defined on %s", call.Method, recv)
	}
	return Type{}, typeErrorf(call, "%s does not accept %d argument(s)", call.Method, argc)
}

func (c *Checker) checkStringCall(call MethodCall, env *Env) (Type, error) {
	switch call.Method {
	case MethodContains, MethodStartsWith, MethodEndsWith:
		if len(call.Args) != 1 {
			return Type{}, typeErrorf(call, "%s takes one argument", call.Method)
		}
		t, err := c.Check(call.Args[0], env)
		if err != nil {
			return Type{}, err
		}
		if t.Kind != KindString {
			return Type{}, typeErrorf(call, "%s argument must be string, got %s", call.Method, t)
		}
		return BoolType, nil
	case MethodToUpper, MethodToLower:
		if len(call.Args) != 0 {
			return Type{}, typeErrorf(call, "%s takes no arguments", call.Method)
		}
		return StringType, nil
	}
	return Type{}, typeErrorf(call, "method %s is not defined on string", call.Method)
}
