package config

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type argInfo struct {
	argPtr interface{}
	set    bool
}

func registerTypes(fs *flag.FlagSet, moduleOptions interface{}, argPointers map[string]*argInfo) error {
	moduleOptionsType := reflect.TypeOf(moduleOptions).Elem()
	moduleOptionsValue := reflect.ValueOf(moduleOptions).Elem()

	for i := 0; i < moduleOptionsType.NumField(); i++ {
		field := moduleOptionsType.Field(i)

		if field.PkgPath != "" {
			continue
		}

		cliName, found := field.Tag.Lookup("cli")
		if !found {
			continue
		}

		cliDescription := field.Tag.Get("desc")

		switch fieldValue := moduleOptionsValue.Field(i).Interface().(type) {
		case string:
			argPointers[cliName] = &argInfo{argPtr: fs.String(cliName, fieldValue, cliDescription)}
		case []string:
			argPointers[cliName] = &argInfo{argPtr: fs.String(cliName, strings.Join(fieldValue, ","), cliDescription)}
		case bool:
			argPointers[cliName] = &argInfo{argPtr: fs.Bool(cliName, fieldValue, cliDescription)}
		case time.Duration:
			argPointers[cliName] = &argInfo{argPtr: fs.Duration(cliName, fieldValue, cliDescription)}
		default:
			return fmt.Errorf("type %s not handled", field.Type)
		}
	}

	return nil
}

func checkForSet(fs *flag.FlagSet, argPointers map[string]*argInfo) {
	fs.Visit(func(f *flag.Flag) {
		if _, found := argPointers[f.Name]; found {
			argPointers[f.Name].set = true
		}
	})
}

func fillOptionsWithMap(options interface{}, argPointers map[string]*argInfo) {
	t := reflect.TypeOf(options).Elem()
	v := reflect.ValueOf(options).Elem()
	for i := 0; i < t.NumField(); i++ {
		cliName, found := t.Field(i).Tag.Lookup("cli")
		if !found {
			continue
		}

		ai, found := argPointers[cliName]
		if !found || !ai.set {
			continue
		}

		fv := v.Field(i)
		switch fv.Interface().(type) {
		case string:
			fv.SetString(*ai.argPtr.(*string))
		case []string:
			var args []string
			for _, a := range strings.Split(*ai.argPtr.(*string), ",") {
				if a = strings.TrimSpace(a); a != "" {
					args = append(args, a)
				}
			}
			fv.Set(reflect.ValueOf(args))
		case bool:
			fv.SetBool(*ai.argPtr.(*bool))
		case time.Duration:
			fv.Set(reflect.ValueOf(*ai.argPtr.(*time.Duration)))
		}
	}
}

// LoadFlagSet loads 2 sets of options from args: global options defined by the
// GlobalOptions struct and local options provided by the passed moduleOptions
// parameter. Values from the config file override the defaults and values on
// the command line override both.
func LoadFlagSet(fs *flag.FlagSet, args []string, moduleOptions interface{}, globalOptions *GlobalOptions) error {
	argPointers := make(map[string]*argInfo)

	if err := registerTypes(fs, moduleOptions, argPointers); err != nil {
		return err
	}
	if err := registerTypes(fs, globalOptions, argPointers); err != nil {
		return err
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	checkForSet(fs, argPointers)

	// special config key needed for loading config file
	// this loads everything from the config file
	if ap, found := argPointers["config"]; found && ap.set {
		configFile := ap.argPtr.(*string)

		configBytes, err := ioutil.ReadFile(*configFile)
		if err != nil {
			return err
		}

		err = yaml.Unmarshal(configBytes, globalOptions)
		if err != nil {
			return err
		}

		err = yaml.Unmarshal(configBytes, moduleOptions)
		if err != nil {
			return err
		}
	}

	fillOptionsWithMap(moduleOptions, argPointers)
	fillOptionsWithMap(globalOptions, argPointers)

	return nil
}

// LoadFlags loads options from the command line of the process.
func LoadFlags(moduleOptions interface{}, globalOptions *GlobalOptions) error {
	return LoadFlagSet(flag.CommandLine, os.Args[1:], moduleOptions, globalOptions)
}
