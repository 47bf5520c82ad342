package classfile

import "fmt"

// ParseMethodDescriptor splits "(params)ret" into field descriptors.
func ParseMethodDescriptor(desc string) (params []string, ret string, err error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, "", fmt.Errorf("malformed method descriptor %q", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldDescriptorLen(desc[i:])
		if err != nil {
			return nil, "", fmt.Errorf("method descriptor %q: %w", desc, err)
		}
		params = append(params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return nil, "", fmt.Errorf("malformed method descriptor %q", desc)
	}
	ret = desc[i+1:]
	if ret != "V" {
		if n, err := fieldDescriptorLen(ret); err != nil || n != len(ret) {
			return nil, "", fmt.Errorf("malformed return type in %q", desc)
		}
	}
	return params, ret, nil
}

func fieldDescriptorLen(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return 0, fmt.Errorf("truncated descriptor %q", s)
	}
	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1, nil
	case 'L':
		for j := i; j < len(s); j++ {
			if s[j] == ';' {
				return j + 1, nil
			}
		}
		return 0, fmt.Errorf("unterminated class descriptor %q", s)
	}
	return 0, fmt.Errorf("bad descriptor character %q", s[i])
}

// DescriptorWidth returns the number of stack words of a field descriptor.
func DescriptorWidth(d string) int {
	switch d {
	case "V":
		return 0
	case "J", "D":
		return 2
	}
	return 1
}

// ArgWords returns the stack words taken by a method's arguments,
// excluding the receiver.
func ArgWords(desc string) (int, error) {
	params, _, err := ParseMethodDescriptor(desc)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range params {
		n += DescriptorWidth(p)
	}
	return n, nil
}
