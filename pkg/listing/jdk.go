package listing

import "github.com/raymyers/ralph-decomp/pkg/typecache"

// jdk is the part of the platform hierarchy listings may rely on without
// declaring it.
var jdk = func() map[string]*typecache.ClassInfo {
	decl := func(name, super string, ifaces ...string) *typecache.ClassInfo {
		return &typecache.ClassInfo{Name: name, Super: super, Interfaces: ifaces}
	}
	const (
		object       = "java/lang/Object"
		serializable = "java/io/Serializable"
		comparable   = "java/lang/Comparable"
		number       = "java/lang/Number"
	)
	list := []*typecache.ClassInfo{
		decl(object, ""),
		decl(serializable, ""),
		decl(comparable, ""),
		decl("java/lang/Cloneable", ""),
		decl("java/lang/Runnable", ""),
		decl("java/lang/CharSequence", ""),
		decl("java/lang/AutoCloseable", ""),
		decl("java/io/Closeable", "", "java/lang/AutoCloseable"),
		decl("java/lang/Iterable", ""),
		decl("java/util/Collection", "", "java/lang/Iterable"),
		decl("java/util/List", "", "java/util/Collection"),
		decl("java/util/Map", ""),
		decl("java/util/Iterator", ""),
		decl("java/util/AbstractCollection", object, "java/util/Collection"),
		decl("java/util/AbstractList", "java/util/AbstractCollection", "java/util/List"),
		decl("java/util/ArrayList", "java/util/AbstractList", "java/util/List", serializable),
		decl("java/util/HashMap", object, "java/util/Map", serializable),
		decl("java/lang/String", object, serializable, comparable, "java/lang/CharSequence"),
		decl("java/lang/StringBuilder", object, serializable, "java/lang/CharSequence"),
		decl(number, object, serializable),
		decl("java/lang/Integer", number, comparable),
		decl("java/lang/Long", number, comparable),
		decl("java/lang/Short", number, comparable),
		decl("java/lang/Byte", number, comparable),
		decl("java/lang/Float", number, comparable),
		decl("java/lang/Double", number, comparable),
		decl("java/lang/Boolean", object, serializable, comparable),
		decl("java/lang/Character", object, serializable, comparable),
		decl("java/lang/Class", object, serializable),
		decl("java/lang/System", object),
		decl("java/lang/Math", object),
		decl("java/io/PrintStream", object, "java/io/Closeable"),
		decl("java/lang/Throwable", object, serializable),
		decl("java/lang/Exception", "java/lang/Throwable"),
		decl("java/lang/Error", "java/lang/Throwable"),
		decl("java/lang/RuntimeException", "java/lang/Exception"),
		decl("java/io/IOException", "java/lang/Exception"),
		decl("java/lang/InterruptedException", "java/lang/Exception"),
		decl("java/lang/IllegalArgumentException", "java/lang/RuntimeException"),
		decl("java/lang/IllegalStateException", "java/lang/RuntimeException"),
		decl("java/lang/NullPointerException", "java/lang/RuntimeException"),
		decl("java/lang/ArithmeticException", "java/lang/RuntimeException"),
		decl("java/lang/ClassCastException", "java/lang/RuntimeException"),
		decl("java/lang/IndexOutOfBoundsException", "java/lang/RuntimeException"),
		decl("java/lang/ArrayIndexOutOfBoundsException", "java/lang/IndexOutOfBoundsException"),
	}
	m := make(map[string]*typecache.ClassInfo, len(list))
	for _, c := range list {
		m[c.Name] = c
	}
	return m
}()
