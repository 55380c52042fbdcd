package registry

import (
	"fmt"
	"net/url"
	"strings"
)

const defaultHost = "github.com"

// CanonicalizeLink normalizes a repository link into https://host/owner/name.
//
// Accepted forms are owner/name, host/owner/name and http(s)://host/owner/name,
// optionally with a trailing slash or a .git suffix. The host is lower-cased;
// owner and name keep their case.
func CanonicalizeLink(raw string) (string, error) {
	link := strings.TrimSpace(raw)
	if link == "" {
		return "", fmt.Errorf("%w: empty link", ErrInvalidRepositoryLink)
	}

	var host, path string
	switch {
	case strings.Contains(link, "://"):
		u, err := url.Parse(link)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidRepositoryLink, err.Error())
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRepositoryLink, u.Scheme)
		}
		if u.RawQuery != "" || u.Fragment != "" || u.User != nil {
			return "", fmt.Errorf("%w: unexpected query, fragment or credentials in %q", ErrInvalidRepositoryLink, raw)
		}
		host, path = u.Host, u.Path
	default:
		parts := strings.Split(strings.Trim(link, "/"), "/")
		switch len(parts) {
		case 2:
			host, path = defaultHost, link
		case 3:
			host, path = parts[0], strings.Join(parts[1:], "/")
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidRepositoryLink, raw)
		}
	}

	owner, name, err := splitOwnerName(path)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, raw)
	}
	host = strings.ToLower(host)
	if host == "" || strings.ContainsAny(host, " /") {
		return "", fmt.Errorf("%w: invalid host in %q", ErrInvalidRepositoryLink, raw)
	}

	return "https://" + host + "/" + owner + "/" + name, nil
}

// SplitLink returns the host, owner and name segments of a canonical link
func SplitLink(canonicalLink string) (host, owner, name string, err error) {
	u, err := url.Parse(canonicalLink)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %s", ErrInvalidRepositoryLink, err.Error())
	}
	if u.Host == "" {
		return "", "", "", fmt.Errorf("%w: no host in %q", ErrInvalidRepositoryLink, canonicalLink)
	}
	owner, name, err = splitOwnerName(u.Path)
	if err != nil {
		return "", "", "", err
	}
	return strings.ToLower(u.Host), owner, name, nil
}

func splitOwnerName(path string) (string, string, error) {
	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		return "", "", ErrInvalidRepositoryLink
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, " ?#") {
			return "", "", ErrInvalidRepositoryLink
		}
	}
	return parts[0], parts[1], nil
}
