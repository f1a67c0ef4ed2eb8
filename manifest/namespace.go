package manifest

import "strings"

// ToPascalCase converts a string to PascalCase.
// "my-app" -> "MyApp", "models" -> "Models", "myApp" -> "MyApp"
func ToPascalCase(s string) string {
	var words []string
	current := ""
	for i, r := range s {
		if r == '-' || r == '_' || r == ' ' {
			if current != "" {
				words = append(words, current)
				current = ""
			}
			continue
		}
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(s[i-1])
			if prev >= 'a' && prev <= 'z' {
				words = append(words, current)
				current = ""
			}
		}
		current += string(r)
	}
	if current != "" {
		words = append(words, current)
	}

	var result string
	for _, w := range words {
		if w == "" {
			continue
		}
		result += strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return result
}

// DefaultNamespace is the namespace given to types that do not declare one:
// the program name in PascalCase, "hello-world" -> "HelloWorld".
func DefaultNamespace(programName string) string {
	return ToPascalCase(programName)
}

// reservedNamespaces lists the root namespaces populated by the core
// library of every module.
var reservedNamespaces = map[string]bool{
	"System": true,
}

// IsReservedNamespace reports whether a program may not declare types in
// namespace. Only the root segment is checked: "System.Collections" is
// reserved, "MySystem" is not.
func IsReservedNamespace(namespace string) bool {
	root, _, _ := strings.Cut(namespace, ".")
	return reservedNamespaces[root]
}
