package frames

import "strings"

// Hierarchy answers the class-hierarchy questions needed to merge reference
// types.
type Hierarchy interface {
	// SuperClass returns the direct superclass of a class, and false when
	// the class is unknown.
	SuperClass(name string) (string, bool)
	// IsInterface reports whether name is a known interface.
	IsInterface(name string) bool
}

type classInfo struct {
	super string
	iface bool
}

// jdk is the read-only table of platform classes the lowering emits
// references to.
var jdk = map[string]classInfo{
	"java/lang/Object":                          {},
	"java/lang/String":                          {super: ObjectClass},
	"java/lang/Class":                           {super: ObjectClass},
	"java/lang/Number":                          {super: ObjectClass},
	"java/lang/Boolean":                         {super: ObjectClass},
	"java/lang/Character":                       {super: ObjectClass},
	"java/lang/Byte":                            {super: "java/lang/Number"},
	"java/lang/Short":                           {super: "java/lang/Number"},
	"java/lang/Integer":                         {super: "java/lang/Number"},
	"java/lang/Long":                            {super: "java/lang/Number"},
	"java/lang/Float":                           {super: "java/lang/Number"},
	"java/lang/Double":                          {super: "java/lang/Number"},
	"java/lang/Enum":                            {super: ObjectClass},
	"java/lang/Record":                          {super: ObjectClass},
	"java/lang/StringBuilder":                   {super: ObjectClass},
	"java/lang/Math":                            {super: ObjectClass},
	"java/lang/System":                          {super: ObjectClass},
	"java/util/Arrays":                          {super: ObjectClass},
	"java/util/Objects":                         {super: ObjectClass},
	"java/io/PrintStream":                       {super: ObjectClass},
	"java/lang/Throwable":                       {super: ObjectClass},
	"java/lang/Exception":                       {super: "java/lang/Throwable"},
	"java/lang/Error":                           {super: "java/lang/Throwable"},
	"java/lang/RuntimeException":                {super: "java/lang/Exception"},
	"java/lang/IllegalArgumentException":        {super: "java/lang/RuntimeException"},
	"java/lang/IllegalStateException":           {super: "java/lang/RuntimeException"},
	"java/lang/NullPointerException":            {super: "java/lang/RuntimeException"},
	"java/lang/ArithmeticException":             {super: "java/lang/RuntimeException"},
	"java/lang/ClassCastException":              {super: "java/lang/RuntimeException"},
	"java/lang/UnsupportedOperationException":   {super: "java/lang/RuntimeException"},
	"java/lang/IndexOutOfBoundsException":       {super: "java/lang/RuntimeException"},
	"java/lang/ArrayIndexOutOfBoundsException":  {super: "java/lang/IndexOutOfBoundsException"},
	"java/lang/StringIndexOutOfBoundsException": {super: "java/lang/IndexOutOfBoundsException"},
	"java/lang/NumberFormatException":           {super: "java/lang/IllegalArgumentException"},
	"java/lang/InterruptedException":            {super: "java/lang/Exception"},
	"java/lang/CloneNotSupportedException":      {super: "java/lang/Exception"},
	"java/lang/ReflectiveOperationException":    {super: "java/lang/Exception"},
	"java/io/IOException":                       {super: "java/lang/Exception"},
	"java/io/UncheckedIOException":              {super: "java/lang/RuntimeException"},
	"java/lang/Comparable":                      {super: ObjectClass, iface: true},
	"java/lang/CharSequence":                    {super: ObjectClass, iface: true},
	"java/lang/Runnable":                        {super: ObjectClass, iface: true},
	"java/lang/Iterable":                        {super: ObjectClass, iface: true},
	"java/lang/AutoCloseable":                   {super: ObjectClass, iface: true},
	"java/lang/Cloneable":                       {super: ObjectClass, iface: true},
	"java/io/Serializable":                      {super: ObjectClass, iface: true},
	"java/io/Closeable":                         {super: ObjectClass, iface: true},
	"java/util/Collection":                      {super: ObjectClass, iface: true},
	"java/util/List":                            {super: ObjectClass, iface: true},
	"java/util/Set":                             {super: ObjectClass, iface: true},
	"java/util/Map":                             {super: ObjectClass, iface: true},
	"java/util/Iterator":                        {super: ObjectClass, iface: true},
	"java/util/function/Supplier":               {super: ObjectClass, iface: true},
	"java/util/function/Function":               {super: ObjectClass, iface: true},
}

// ClassHierarchy layers declared classes over the platform table. The zero
// value is not usable; create one with NewHierarchy.
type ClassHierarchy struct {
	declared map[string]classInfo
}

// NewHierarchy returns a hierarchy that knows the platform classes.
func NewHierarchy() *ClassHierarchy {
	return &ClassHierarchy{declared: make(map[string]classInfo)}
}

// Declare registers a class or interface by internal name.
func (h *ClassHierarchy) Declare(name, super string, iface bool) {
	if super == "" && name != ObjectClass {
		super = ObjectClass
	}
	h.declared[name] = classInfo{super: super, iface: iface}
}

func (h *ClassHierarchy) lookup(name string) (classInfo, bool) {
	if c, ok := h.declared[name]; ok {
		return c, true
	}
	c, ok := jdk[name]
	return c, ok
}

// SuperClass implements Hierarchy.
func (h *ClassHierarchy) SuperClass(name string) (string, bool) {
	c, ok := h.lookup(name)
	return c.super, ok
}

// IsInterface implements Hierarchy.
func (h *ClassHierarchy) IsInterface(name string) bool {
	c, ok := h.lookup(name)
	return ok && c.iface
}

// ancestors returns name and its superclasses up to Object. Unknown classes
// are assumed to extend Object directly.
func ancestors(h Hierarchy, name string) []string {
	chain := []string{name}
	for name != ObjectClass && len(chain) < 64 {
		super, ok := h.SuperClass(name)
		if !ok || super == "" {
			super = ObjectClass
		}
		chain = append(chain, super)
		name = super
	}
	return chain
}

// CommonSuperClass returns the nearest common superclass of two reference
// types given as internal names or array descriptors. Interfaces merge to
// Object.
func CommonSuperClass(h Hierarchy, a, b string) string {
	if a == b {
		return a
	}
	arrA, arrB := strings.HasPrefix(a, "["), strings.HasPrefix(b, "[")
	if arrA || arrB {
		if !arrA || !arrB {
			return ObjectClass
		}
		ca, cb := a[1:], b[1:]
		if !isReferenceDescriptor(ca) || !isReferenceDescriptor(cb) {
			return ObjectClass
		}
		return "[" + classDescriptor(CommonSuperClass(h, descriptorClass(ca), descriptorClass(cb)))
	}
	if h.IsInterface(a) || h.IsInterface(b) {
		return ObjectClass
	}
	seen := make(map[string]bool)
	for _, c := range ancestors(h, a) {
		seen[c] = true
	}
	for _, c := range ancestors(h, b) {
		if seen[c] {
			return c
		}
	}
	return ObjectClass
}

func isReferenceDescriptor(d string) bool { return d[0] == 'L' || d[0] == '[' }

// descriptorClass turns "Lx;" into "x" and leaves array descriptors alone.
func descriptorClass(d string) string {
	if d[0] == 'L' {
		return d[1 : len(d)-1]
	}
	return d
}

// IsSubclass reports whether class from is to or extends it. known is false
// when the answer depends on classes or interfaces the hierarchy cannot
// see.
func IsSubclass(h Hierarchy, from, to string) (ok, known bool) {
	if from == to || to == ObjectClass {
		return true, true
	}
	if strings.HasPrefix(from, "[") || strings.HasPrefix(to, "[") {
		return false, false
	}
	if h.IsInterface(to) || h.IsInterface(from) {
		return false, false
	}
	name := from
	for name != ObjectClass {
		super, found := h.SuperClass(name)
		if !found {
			return false, false
		}
		if super == to {
			return true, true
		}
		name = super
	}
	_, found := h.SuperClass(to)
	return false, found
}

// Unrelated reports whether the hierarchy proves that neither class extends
// the other, so no value can be both.
func Unrelated(h Hierarchy, a, b string) bool {
	ab, knownAB := IsSubclass(h, a, b)
	ba, knownBA := IsSubclass(h, b, a)
	return knownAB && knownBA && !ab && !ba
}
